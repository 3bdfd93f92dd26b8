package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gocolly/colly/v2"
)

// CollyFetcher implements the Fetcher interface using colly
type CollyFetcher struct {
	collector *colly.Collector
	headers   map[string]string
}

// NewCollyFetcher creates a new CollyFetcher instance
func NewCollyFetcher(opts Options) *CollyFetcher {
	opts = opts.withDefaults()

	// The same page URL is requested again on every fetch of a screen
	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(opts.Timeout)

	return &CollyFetcher{
		collector: c,
		headers:   opts.Headers,
	}
}

// Fetch implements the Fetcher interface
func (cf *CollyFetcher) Fetch(ctx context.Context, url string) (string, error) {
	// Callbacks are registered per call on a clone so concurrent sessions
	// never see each other's responses
	c := cf.collector.Clone()
	c.Context = ctx

	var (
		body     []byte
		status   int
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for k, v := range cf.headers {
			r.Headers.Set(k, v)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		status = r.StatusCode
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	c.Wait()

	if fetchErr != nil {
		log.Debug("page request failed", "url", url, "status", status, "err", fetchErr)
		return "", &NetworkError{URL: url, StatusCode: status, Err: fetchErr}
	}
	if status < 200 || status > 299 {
		return "", &NetworkError{
			URL:        url,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected response: %s", http.StatusText(status)),
		}
	}

	log.Debug("fetched page", "url", url, "status", status, "bytes", len(body))
	return string(body), nil
}
