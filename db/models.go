package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run statuses
const (
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Sources a fetch can be started from
const (
	SourceWeb = "web"
	SourceCLI = "cli"
	SourceBot = "bot"
)

// maxErrorLen bounds the stored error text
const maxErrorLen = 2000

// FetchRun represents one scraper run over a screen
type FetchRun struct {
	ID         int
	URL        string
	Source     string
	Status     string // "in_progress", "done", "failed"
	RowsCount  int
	PagesCount int
	LastError  sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Duration is the wall time between start and the last update
func (r FetchRun) Duration() time.Duration {
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// StartRun records a new in-progress run
func (db *DB) StartRun(ctx context.Context, url, source string) (*FetchRun, error) {
	var run FetchRun
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO fetch_runs (url, source, status)
		VALUES ($1, $2, 'in_progress')
		RETURNING id, url, source, status, rows_count, pages_count, last_error, created_at, updated_at
	`, url, source).Scan(
		&run.ID, &run.URL, &run.Source, &run.Status,
		&run.RowsCount, &run.PagesCount, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return &run, nil
}

// FinishRun marks a run done with its final counts
func (db *DB) FinishRun(ctx context.Context, runID, rowsCount, pagesCount int) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE fetch_runs
		SET status = 'done', rows_count = $1, pages_count = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, rowsCount, pagesCount, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	return nil
}

// FailRun marks a run failed and keeps the error text
func (db *DB) FailRun(ctx context.Context, runID, pagesCount int, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = truncate(runErr.Error(), maxErrorLen)
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE fetch_runs
		SET status = 'failed', pages_count = $1, last_error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`, pagesCount, msg, runID)
	if err != nil {
		return fmt.Errorf("failed to fail run %d: %w", runID, err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]FetchRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, url, source, status, rows_count, pages_count, last_error, created_at, updated_at
		FROM fetch_runs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []FetchRun
	for rows.Next() {
		var run FetchRun
		if err := rows.Scan(
			&run.ID, &run.URL, &run.Source, &run.Status,
			&run.RowsCount, &run.PagesCount, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// getRunByID retrieves a run by its ID
func (db *DB) getRunByID(ctx context.Context, runID int) (*FetchRun, error) {
	var run FetchRun
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, url, source, status, rows_count, pages_count, last_error, created_at, updated_at
		FROM fetch_runs
		WHERE id = $1
	`, runID).Scan(
		&run.ID, &run.URL, &run.Source, &run.Status,
		&run.RowsCount, &run.PagesCount, &run.LastError, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %d: %w", runID, err)
	}
	return &run, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
