package fetcher

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultUserAgent mimics a desktop Chrome
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultTimeout bounds a single page request
	DefaultTimeout = 30 * time.Second
)

// Fetcher interface defines the contract for fetching implementations
type Fetcher interface {
	// Fetch retrieves the HTML of a single page
	Fetch(ctx context.Context, url string) (string, error)
}

// Options configures a Fetcher
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Headers are sent with every request in addition to the user agent
	Headers map[string]string
}

// DefaultHeaders returns the browser-like headers sent with every page request.
// The cache headers keep screener from serving stale result pages.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Accept-Encoding":           "gzip",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "no-cache, no-store, must-revalidate",
		"Pragma":                    "no-cache",
		"Expires":                   "0",
	}
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Headers == nil {
		o.Headers = DefaultHeaders()
	}
	return o
}

// NetworkError is returned when a page could not be retrieved: transport
// failures, timeouts and non-2xx responses
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
