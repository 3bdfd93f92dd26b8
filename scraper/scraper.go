package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"screener-scraper/fetcher"
	"screener-scraper/filter"
	"screener-scraper/models"
	"screener-scraper/pagination"
	"screener-scraper/parser"

	"github.com/charmbracelet/log"
)

const (
	// DefaultMaxPages bounds pagination against a source that never runs out of pages
	DefaultMaxPages = 100

	// DefaultPageDelay is the pause between two page requests
	DefaultPageDelay = 3 * time.Second

	// DefaultLastPageThreshold is the row count below which a page is taken as
	// the last one. It assumes screener's page size (25 companies, plus the
	// header it repeats inside full tables) and breaks if the site changes it.
	DefaultLastPageThreshold = 26

	// DefaultTargetDomain is the only site ValidateURL accepts
	DefaultTargetDomain = "screener.in"
)

var (
	// ErrNetwork wraps transport failures, timeouts and non-2xx responses
	ErrNetwork = errors.New("network error fetching data")

	// ErrFetch wraps every other failure while fetching a screen
	ErrFetch = errors.New("error fetching data")
)

// Options configures a Scraper. Zero values fall back to the defaults, except
// PageDelay where zero means no pause.
type Options struct {
	MaxPages          int
	PageDelay         time.Duration
	LastPageThreshold int
	PageParam         string
	SequenceColumn    string
	TargetDomain      string

	// Sleep waits between two pages
	Sleep func(ctx context.Context, d time.Duration) error
}

// ProgressFunc is called after every parsed page with the page number and the
// number of rows it contributed
type ProgressFunc func(page, rows int)

// Scraper walks the numbered result pages of a screen and collects their tables
type Scraper struct {
	fetcher fetcher.Fetcher
	parser  *parser.Parser
	filter  *filter.Filter
	opts    Options
}

// New creates a Scraper reading pages through f
func New(f fetcher.Fetcher, opts Options) *Scraper {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.PageDelay < 0 {
		opts.PageDelay = 0
	}
	if opts.LastPageThreshold <= 0 {
		opts.LastPageThreshold = DefaultLastPageThreshold
	}
	if opts.PageParam == "" {
		opts.PageParam = pagination.DefaultParam
	}
	if opts.SequenceColumn == "" {
		opts.SequenceColumn = models.SequenceColumn
	}
	if opts.TargetDomain == "" {
		opts.TargetDomain = DefaultTargetDomain
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	return &Scraper{
		fetcher: f,
		parser:  parser.NewParser(),
		filter:  filter.NewFilter(opts.SequenceColumn),
		opts:    opts,
	}
}

// ValidateURL reports whether url belongs to the configured target site
func (s *Scraper) ValidateURL(url string) bool {
	return HasDomain(url, s.opts.TargetDomain)
}

// Fetch collects every result page of the screen at baseURL into one dataset
func (s *Scraper) Fetch(ctx context.Context, baseURL string) (*models.Dataset, error) {
	return s.FetchWithProgress(ctx, baseURL, nil)
}

// FetchWithProgress is Fetch reporting each page to onPage.
//
// Pages are requested one after another starting at 1. Pagination stops at the
// first page without tables, after the first page with fewer than
// LastPageThreshold rows, or at MaxPages. Any failure discards the rows
// collected so far.
func (s *Scraper) FetchWithProgress(ctx context.Context, baseURL string, onPage ProgressFunc) (data *models.Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("%w: panic while parsing: %v", ErrFetch, r)
		}
	}()

	data = models.NewDataset()
	start := time.Now()
	pages := 0

	for page := 1; page <= s.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}

		pageURL, err := pagination.PageURL(baseURL, s.opts.PageParam, page)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}

		html, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, classify(ctx, err)
		}
		pages++

		pageData, found, err := s.parser.ParsePage(html)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		if !found {
			log.Info("no tables found, end of results", "page", page)
			break
		}

		pageData = s.filter.DropNullSequence(pageData)
		data.Append(pageData)
		log.Info("fetched page", "page", page, "rows", pageData.Len(), "total", data.Len())
		if onPage != nil {
			onPage(page, pageData.Len())
		}

		if pageData.Len() < s.opts.LastPageThreshold {
			break
		}
		if page == s.opts.MaxPages {
			log.Warn("page cap reached, results may be incomplete", "max_pages", s.opts.MaxPages)
			break
		}

		if err := s.opts.Sleep(ctx, s.opts.PageDelay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
	}

	data = s.filter.DropRepeatedHeaders(data)

	log.Info("fetch completed", "url", baseURL, "pages", pages, "rows", data.Len(), "columns", len(data.Columns), "elapsed", time.Since(start).Round(time.Millisecond))
	return data, nil
}

// classify wraps a page error into ErrNetwork or ErrFetch. A request aborted
// because ctx ended is a cancellation, not a network failure.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ErrFetch, err)
		}
		return fmt.Errorf("%w: %w: %v", ErrFetch, ctxErr, err)
	}

	var netErr *fetcher.NetworkError
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %w", ErrFetch, err)
}

// ValidateURL reports whether url is a screener.in URL
func ValidateURL(url string) bool {
	return HasDomain(url, DefaultTargetDomain)
}

// HasDomain reports whether url mentions domain, ignoring case.
// It is a plain substring check, the URL is not parsed.
func HasDomain(url, domain string) bool {
	return strings.Contains(strings.ToLower(url), strings.ToLower(domain))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
