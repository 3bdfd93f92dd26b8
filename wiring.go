package main

import (
	"context"
	"fmt"
	"time"

	"screener-scraper/config"
	"screener-scraper/db"
	"screener-scraper/fetcher"
	"screener-scraper/scraper"
	"screener-scraper/sheets"

	"github.com/charmbracelet/log"
)

// app holds everything a command needs, built from config and environment
type app struct {
	cfg     *config.Config
	secrets *config.Secrets
	scraper *scraper.Scraper
	history *db.DB
	sheets  *sheets.Writer

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, secrets: secrets}

	f, err := a.newFetcher()
	if err != nil {
		return nil, err
	}
	a.scraper = scraper.New(f, scraper.Options{
		MaxPages:          cfg.Scraper.MaxPages,
		PageDelay:         cfg.Scraper.PageDelay,
		LastPageThreshold: cfg.Scraper.LastPageThreshold,
		PageParam:         cfg.Scraper.PageParam,
		TargetDomain:      cfg.Scraper.TargetDomain,
	})

	a.openHistory(ctx)
	a.openSheets(ctx)
	return a, nil
}

func (a *app) newFetcher() (fetcher.Fetcher, error) {
	opts := fetcher.Options{
		UserAgent: a.cfg.Fetcher.UserAgent,
		Timeout:   a.cfg.Fetcher.Timeout,
	}

	switch a.cfg.Fetcher.Engine {
	case "browser":
		log.Info("starting headless browser")
		rf, err := fetcher.NewRodFetcher(opts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rf.Close)
		return rf, nil
	default:
		return fetcher.NewCollyFetcher(opts), nil
	}
}

// openHistory connects to PostgreSQL when configured. History is optional, a
// failure is logged and the app runs without it.
func (a *app) openHistory(ctx context.Context) {
	if a.secrets.DatabaseURL == "" {
		log.Debug("DATABASE_URL not set, fetch history disabled")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := db.NewDB(ctx, a.secrets.DatabaseURL)
	if err != nil {
		log.Warn("fetch history disabled", "err", err)
		return
	}
	a.history = database
	a.closers = append(a.closers, database.Close)
	log.Info("fetch history enabled")
}

// openSheets creates the Google Sheets writer when a spreadsheet is configured
func (a *app) openSheets(ctx context.Context) {
	spreadsheetURL := a.spreadsheetURL()
	if spreadsheetURL == "" {
		log.Debug("no spreadsheet configured, Google Sheets export disabled")
		return
	}

	spreadsheetID := sheets.ExtractSpreadsheetID(spreadsheetURL)
	if spreadsheetID == "" {
		log.Warn("could not extract spreadsheet ID, Google Sheets export disabled", "url", spreadsheetURL)
		return
	}

	writer, err := sheets.NewWriter(ctx, spreadsheetID, a.cfg.Sheets.CredentialsFile, a.secrets.SheetsCredentials)
	if err != nil {
		log.Warn("Google Sheets export disabled", "err", err)
		return
	}
	a.sheets = writer
	log.Info("Google Sheets export enabled", "spreadsheet", spreadsheetID)
}

func (a *app) spreadsheetURL() string {
	if a.secrets.SpreadsheetURL != "" {
		return a.secrets.SpreadsheetURL
	}
	return a.cfg.Sheets.SpreadsheetURL
}

// startRun records a run when history is enabled and returns its ID, or 0
func (a *app) startRun(ctx context.Context, url, source string) int {
	if a.history == nil {
		return 0
	}
	run, err := a.history.StartRun(ctx, url, source)
	if err != nil {
		log.Warn("failed to record run start", "err", err)
		return 0
	}
	return run.ID
}

func (a *app) finishRun(ctx context.Context, runID, rows, pages int, runErr error) {
	if a.history == nil || runID == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if runErr != nil {
		err = a.history.FailRun(ctx, runID, pages, runErr)
	} else {
		err = a.history.FinishRun(ctx, runID, rows, pages)
	}
	if err != nil {
		log.Warn("failed to record run", "run", runID, "err", err)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("close", "err", err)
		}
	}
}

func requireValidURL(s *scraper.Scraper, url string) error {
	if url == "" {
		return fmt.Errorf("please enter a URL first")
	}
	if !s.ValidateURL(url) {
		return fmt.Errorf("please enter a valid screener.in URL: %q", url)
	}
	return nil
}
