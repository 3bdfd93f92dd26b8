package fetcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher implements the Fetcher interface using rod (headless browser).
// Use it when screener serves the results table through JavaScript.
type RodFetcher struct {
	browser *rod.Browser
	opts    Options
}

// NewRodFetcher launches a headless browser and connects to it
func NewRodFetcher(opts Options) (*RodFetcher, error) {
	opts = opts.withDefaults()

	// Get user data directory from environment or use default
	userDataDir := os.Getenv("BOT_DATA_DIR")
	if userDataDir == "" {
		userDataDir = "/tmp/screener-data"
	}

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		log.Warn("failed to create browser data directory", "dir", userDataDir, "err", err)
		userDataDir = ""
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		NoSandbox(true).
		Leakless(false). // Disable leakless to avoid antivirus issues
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-sync").
		Set("disable-translate").
		Set("mute-audio").
		Set("no-zygote")
	if userDataDir != "" {
		l = l.UserDataDir(userDataDir)
	}

	// Prefer an installed Chrome/Chromium over downloading one
	if bin, ok := launcher.LookPath(); ok {
		l = l.Bin(bin)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w\n\nNote: On Linux, you may need to install Chromium dependencies:\n  apt-get update && apt-get install -y chromium", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &RodFetcher{
		browser: browser,
		opts:    opts,
	}, nil
}

// Close closes the browser
func (rf *RodFetcher) Close() error {
	if rf.browser != nil {
		return rf.browser.Close()
	}
	return nil
}

// Fetch implements the Fetcher interface
func (rf *RodFetcher) Fetch(ctx context.Context, url string) (string, error) {
	page, err := rf.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Timeout(rf.opts.Timeout)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rf.opts.UserAgent}); err != nil {
		return "", fmt.Errorf("failed to set user agent: %w", err)
	}

	var headers []string
	for k, v := range rf.opts.Headers {
		// The browser negotiates these itself
		if k == "Accept-Encoding" || k == "Connection" {
			continue
		}
		headers = append(headers, k, v)
	}
	if len(headers) > 0 {
		cleanup, err := page.SetExtraHeaders(headers)
		if err != nil {
			return "", fmt.Errorf("failed to set headers: %w", err)
		}
		defer cleanup()
	}

	if err := page.Navigate(url); err != nil {
		return "", &NetworkError{URL: url, Err: err}
	}
	if err := page.WaitLoad(); err != nil {
		return "", &NetworkError{URL: url, Err: err}
	}

	// Give the results table time to render
	if err := page.WaitStable(500 * time.Millisecond); err != nil {
		log.Warn("page did not stabilize within timeout, continuing anyway", "url", url, "err", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}

	log.Debug("rendered page", "url", url, "bytes", len(html))
	return html, nil
}
