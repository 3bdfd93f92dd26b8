package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"screener-scraper/db"
	"screener-scraper/models"
	"screener-scraper/scraper"
	"screener-scraper/session"

	"github.com/charmbracelet/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// Preview slider bounds
const (
	MinPreviewRows     = 5
	MaxPreviewRows     = 100
	DefaultPreviewRows = 10
)

const (
	cookieName     = "screener_session"
	recentRunCount = 5
)

// Fetcher runs the pagination loop for one URL
type Fetcher interface {
	ValidateURL(url string) bool
	FetchWithProgress(ctx context.Context, url string, onPage scraper.ProgressFunc) (*models.Dataset, error)
}

// History records fetch runs and lists the recent ones
type History interface {
	StartRun(ctx context.Context, url, source string) (*db.FetchRun, error)
	FinishRun(ctx context.Context, runID, rowsCount, pagesCount int) error
	FailRun(ctx context.Context, runID, pagesCount int, runErr error) error
	RecentRuns(ctx context.Context, limit int) ([]db.FetchRun, error)
}

// SheetWriter exports a dataset to a new spreadsheet tab
type SheetWriter interface {
	SpreadsheetID() string
	CreateSheetAndWriteDataset(ctx context.Context, sheetName string, ds *models.Dataset, sourceURL string) (string, int64, error)
}

// Options holds the optional parts of the page
type Options struct {
	History     History
	Sheets      SheetWriter
	ExampleURLs []string
	Now         func() time.Time
}

// Server serves the interactive page
type Server struct {
	fetcher  Fetcher
	sessions *session.Store
	history  History
	sheets   SheetWriter
	examples []string
	now      func() time.Time
	tmpl     *template.Template
}

// NewServer creates the page server
func NewServer(f Fetcher, store *session.Store, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		fetcher:  f,
		sessions: store,
		history:  opts.History,
		sheets:   opts.Sheets,
		examples: opts.ExampleURLs,
		now:      opts.Now,
		tmpl:     template.Must(template.ParseFS(templateFS, "templates/*.html")),
	}
}

// Handler returns the routes of the page
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /fetch", s.handleFetch)
	mux.HandleFunc("GET /download/{format}", s.handleDownload)
	mux.HandleFunc("POST /export/sheets", s.handleExportSheets)
	return logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", "err", err)
		}
	}()

	go s.pruneSessions(ctx)

	log.Info("serving", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// pruneSessions forgets visitors idle for a day
func (s *Server) pruneSessions(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Prune(24 * time.Hour); n > 0 {
				log.Debug("pruned idle sessions", "count", n, "remaining", s.sessions.Len())
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start).Round(time.Millisecond))
	})
}
