package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"screener-scraper/db"
	"screener-scraper/export"
	"screener-scraper/models"
	"screener-scraper/scraper"
	"screener-scraper/session"
	"screener-scraper/sheets"

	"github.com/charmbracelet/log"
)

const noDataText = `No data fetched yet. Enter a URL and click "Fetch Data".`

type message struct {
	Kind string // "success" or "error"
	Text string
	Link string
}

func successMsg(text string) *message { return &message{Kind: "success", Text: text} }
func errorMsg(text string) *message   { return &message{Kind: "error", Text: text} }

// pageData is everything the template renders
type pageData struct {
	URL           string
	Fetched       bool
	FetchedAt     time.Time
	Records       int
	Columns       int
	Rows          int
	MinRows       int
	MaxRows       int
	Preview       *models.Dataset
	ColumnInfo    []models.ColumnInfo
	Message       *message
	Examples      []string
	History       []db.FetchRun
	SheetsEnabled bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	s.render(w, r, id, http.StatusOK, nil, nil)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	url := strings.TrimSpace(r.FormValue("url"))

	if url == "" {
		s.render(w, r, id, http.StatusBadRequest, errorMsg("Please enter a URL first."), &url)
		return
	}
	if !s.fetcher.ValidateURL(url) {
		s.render(w, r, id, http.StatusBadRequest, errorMsg("Please enter a valid screener.in URL."), &url)
		return
	}

	unlock, ok := s.sessions.TryLockFetch(id)
	if !ok {
		s.render(w, r, id, http.StatusConflict, errorMsg("A fetch is already running for this session. Please wait for it to finish."), &url)
		return
	}
	defer unlock()

	ctx := r.Context()
	runID := s.startRun(ctx, url)

	pages := 0
	data, err := s.fetcher.FetchWithProgress(ctx, url, func(page, rows int) {
		pages = page
	})
	if err != nil {
		log.Error("fetch failed", "url", url, "err", err)
		s.failRun(ctx, runID, pages, err)

		status := http.StatusInternalServerError
		if errors.Is(err, scraper.ErrNetwork) {
			status = http.StatusBadGateway
		}
		s.render(w, r, id, status, errorMsg(err.Error()), &url)
		return
	}

	if s.history != nil && runID != 0 {
		if err := s.history.FinishRun(ctx, runID, data.Len(), pages); err != nil {
			log.Warn("failed to record finished run", "run", runID, "err", err)
		}
	}

	s.sessions.Replace(id, data, url)
	s.render(w, r, id, http.StatusOK, successMsg(fmt.Sprintf("Fetched %d records with %d columns.", data.Len(), len(data.Columns))), nil)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)

	format, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	st := s.sessions.Get(id)
	if !st.Fetched {
		s.render(w, r, id, http.StatusConflict, errorMsg(noDataText), nil)
		return
	}

	content, err := export.Serialize(st.Dataset, format)
	if err != nil {
		log.Error("conversion failed", "format", format, "err", err)
		s.render(w, r, id, http.StatusInternalServerError,
			errorMsg(fmt.Sprintf("Failed to convert to %s: %v", strings.ToUpper(string(format)), err)), nil)
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format)+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(format, s.now())))
	if _, err := io.WriteString(w, content); err != nil {
		log.Warn("download interrupted", "format", format, "err", err)
	}
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.sheets == nil {
		http.NotFound(w, r)
		return
	}
	id := s.sessionID(w, r)

	st := s.sessions.Get(id)
	if !st.Fetched {
		s.render(w, r, id, http.StatusConflict, errorMsg(noDataText), nil)
		return
	}

	_, gid, err := s.sheets.CreateSheetAndWriteDataset(r.Context(), sheets.SheetName(s.now()), st.Dataset, st.URL)
	if err != nil {
		log.Error("sheets export failed", "err", err)
		s.render(w, r, id, http.StatusBadGateway, errorMsg(fmt.Sprintf("Google Sheets export failed: %v", err)), nil)
		return
	}

	msg := successMsg(fmt.Sprintf("Exported %d records to Google Sheets.", st.Dataset.Len()))
	msg.Link = sheets.SheetURL(s.sheets.SpreadsheetID(), gid)
	s.render(w, r, id, http.StatusOK, msg, nil)
}

// render draws the page for a session. urlInput overrides the prefilled URL.
func (s *Server) render(w http.ResponseWriter, r *http.Request, id string, status int, msg *message, urlInput *string) {
	st := s.sessions.Get(id)

	data := pageData{
		URL:           st.URL,
		Fetched:       st.Fetched,
		Rows:          previewRows(r.FormValue("rows")),
		MinRows:       MinPreviewRows,
		MaxRows:       MaxPreviewRows,
		Message:       msg,
		Examples:      s.examples,
		SheetsEnabled: s.sheets != nil,
	}
	if urlInput != nil {
		data.URL = *urlInput
	}
	if st.Fetched && st.Dataset != nil {
		data.FetchedAt = st.FetchedAt
		data.Records = st.Dataset.Len()
		data.Columns = len(st.Dataset.Columns)
		data.Preview = st.Dataset.Head(data.Rows)
		data.ColumnInfo = st.Dataset.ColumnInfo()
	}
	if s.history != nil {
		runs, err := s.history.RecentRuns(r.Context(), recentRunCount)
		if err != nil {
			log.Warn("failed to load recent runs", "err", err)
		}
		data.History = runs
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		log.Error("failed to render page", "err", err)
	}
}

// previewRows parses the slider value, clamped to its bounds
func previewRows(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultPreviewRows
	}
	if n < MinPreviewRows {
		return MinPreviewRows
	}
	if n > MaxPreviewRows {
		return MaxPreviewRows
	}
	return n
}

// sessionID reads the session cookie, issuing a new one when missing or malformed
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(cookieName); err == nil && session.ValidID(c.Value) {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (s *Server) startRun(ctx context.Context, url string) int {
	if s.history == nil {
		return 0
	}
	run, err := s.history.StartRun(ctx, url, db.SourceWeb)
	if err != nil {
		log.Warn("failed to record run start", "err", err)
		return 0
	}
	return run.ID
}

func (s *Server) failRun(ctx context.Context, runID, pages int, runErr error) {
	if s.history == nil || runID == 0 {
		return
	}
	if err := s.history.FailRun(context.WithoutCancel(ctx), runID, pages, runErr); err != nil {
		log.Warn("failed to record failed run", "run", runID, "err", err)
	}
}
