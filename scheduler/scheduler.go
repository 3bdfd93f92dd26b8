package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"screener-scraper/db"
	"screener-scraper/export"
	"screener-scraper/models"
	"screener-scraper/scraper"
	"screener-scraper/sheets"

	"github.com/charmbracelet/log"
)

// DefaultQueueSize bounds the number of waiting jobs
const DefaultQueueSize = 100

// ErrQueueFull is returned by Enqueue when no more jobs can wait
var ErrQueueFull = errors.New("queue is full, try again later")

// Job is one chat request to fetch a screen
type Job struct {
	ChatID    int64
	MessageID int
	URL       string
}

// Fetcher runs the pagination loop
type Fetcher interface {
	FetchWithProgress(ctx context.Context, url string, onPage scraper.ProgressFunc) (*models.Dataset, error)
}

// Notifier delivers messages and files back to the chat a job came from
type Notifier interface {
	SendText(chatID int64, replyTo int, text string) error
	SendDocument(chatID int64, replyTo int, name string, data []byte, caption string) error
}

// History records fetch runs
type History interface {
	StartRun(ctx context.Context, url, source string) (*db.FetchRun, error)
	FinishRun(ctx context.Context, runID, rowsCount, pagesCount int) error
	FailRun(ctx context.Context, runID, pagesCount int, runErr error) error
}

// SheetWriter exports a dataset to a new spreadsheet tab
type SheetWriter interface {
	SpreadsheetID() string
	CreateSheetAndWriteDataset(ctx context.Context, sheetName string, ds *models.Dataset, sourceURL string) (string, int64, error)
}

// Options holds the optional collaborators of a Scheduler
type Options struct {
	History   History
	Sheets    SheetWriter
	QueueSize int
	Now       func() time.Time
}

// Scheduler processes chat jobs one at a time on a single worker goroutine
type Scheduler struct {
	fetcher  Fetcher
	notifier Notifier
	history  History
	sheets   SheetWriter
	now      func() time.Time

	jobs chan Job
	wg   sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(f Fetcher, n Notifier, opts Options) *Scheduler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		fetcher:  f,
		notifier: n,
		history:  opts.History,
		sheets:   opts.Sheets,
		now:      opts.Now,
		jobs:     make(chan Job, opts.QueueSize),
	}
}

// Start starts the worker. It stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Wait blocks until the worker has stopped
func (s *Scheduler) Wait() {
	s.wg.Wait()
	log.Info("scheduler stopped")
}

// Enqueue queues a job and returns its position in the queue
func (s *Scheduler) Enqueue(job Job) (int, error) {
	select {
	case s.jobs <- job:
		return len(s.jobs), nil
	default:
		return 0, ErrQueueFull
	}
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.jobs:
			s.process(ctx, job)
		}
	}
}

// process runs one job. A failed job is reported to its chat and never stops the worker.
func (s *Scheduler) process(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "url", job.URL, "panic", r)
			s.send(job, fmt.Sprintf("❌ Error processing request: %v", r))
		}
	}()

	log.Info("processing job", "chat", job.ChatID, "url", job.URL)
	s.send(job, "🔄 Processing request... Starting fetch...")

	runID := s.startRun(ctx, job.URL)

	pages := 0
	data, err := s.fetcher.FetchWithProgress(ctx, job.URL, func(page, rows int) {
		pages = page
		s.send(job, fmt.Sprintf("📄 Page %d fetched (%d rows)", page, rows))
	})
	if err != nil {
		log.Error("job failed", "url", job.URL, "err", err)
		s.failRun(ctx, runID, pages, err)
		s.send(job, fmt.Sprintf("❌ Error processing request: %v", err))
		return
	}

	if s.history != nil && runID != 0 {
		if err := s.history.FinishRun(ctx, runID, data.Len(), pages); err != nil {
			log.Warn("failed to record finished run", "run", runID, "err", err)
		}
	}

	if data.Len() == 0 {
		s.send(job, "⚠️ No records found at this URL.")
		return
	}

	summary := fmt.Sprintf("✅ Fetched %d records with %d columns from %d pages.", data.Len(), len(data.Columns), pages)
	if link := s.exportSheet(ctx, job, data); link != "" {
		summary += "\n\nView spreadsheet: " + link
	}
	s.send(job, summary)

	now := s.now()
	for _, format := range []export.Format{export.CSV, export.JSON} {
		content, err := export.Serialize(data, format)
		if err != nil {
			s.send(job, fmt.Sprintf("❌ Failed to convert to %s: %v", format, err))
			continue
		}
		if err := s.notifier.SendDocument(job.ChatID, job.MessageID, export.Filename(format, now), []byte(content), ""); err != nil {
			log.Error("failed to send document", "format", format, "err", err)
		}
	}
}

func (s *Scheduler) startRun(ctx context.Context, url string) int {
	if s.history == nil {
		return 0
	}
	run, err := s.history.StartRun(ctx, url, db.SourceBot)
	if err != nil {
		log.Warn("failed to record run start", "err", err)
		return 0
	}
	return run.ID
}

func (s *Scheduler) failRun(ctx context.Context, runID, pages int, runErr error) {
	if s.history == nil || runID == 0 {
		return
	}
	// the job context may be the reason for the failure
	if err := s.history.FailRun(context.WithoutCancel(ctx), runID, pages, runErr); err != nil {
		log.Warn("failed to record failed run", "run", runID, "err", err)
	}
}

// exportSheet writes data to a new tab and returns its link, or "" when
// sheets is not configured or the export failed
func (s *Scheduler) exportSheet(ctx context.Context, job Job, data *models.Dataset) string {
	if s.sheets == nil {
		return ""
	}
	_, gid, err := s.sheets.CreateSheetAndWriteDataset(ctx, sheets.SheetName(s.now()), data, job.URL)
	if err != nil {
		log.Error("failed to write to Google Sheets", "err", err)
		s.send(job, fmt.Sprintf("⚠️ Google Sheets export failed: %v", err))
		return ""
	}
	return sheets.SheetURL(s.sheets.SpreadsheetID(), gid)
}

// send sends a status update to the chat of a job
func (s *Scheduler) send(job Job, text string) {
	if err := s.notifier.SendText(job.ChatID, job.MessageID, text); err != nil {
		log.Error("failed to send status update", "chat", job.ChatID, "err", err)
	}
}
