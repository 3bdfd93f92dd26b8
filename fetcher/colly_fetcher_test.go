package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollyFetcher_SendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<table><tr><th>S.No.</th></tr></table>`))
	}))
	defer srv.Close()

	html, err := NewCollyFetcher(Options{}).Fetch(context.Background(), srv.URL+"/screens/1/x/?page=1")
	require.NoError(t, err)
	assert.Contains(t, html, "S.No.")

	assert.Equal(t, DefaultUserAgent, got.Get("User-Agent"))
	for k, v := range DefaultHeaders() {
		if k == "Connection" {
			// hop-by-hop, consumed by the server
			continue
		}
		assert.Equal(t, v, got.Get(k), "header %s", k)
	}
}

func TestCollyFetcher_RevisitsSameURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<p>ok</p>`))
	}))
	defer srv.Close()

	f := NewCollyFetcher(Options{})
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, hits)
}

func TestCollyFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewCollyFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, http.StatusTooManyRequests, netErr.StatusCode)
	assert.Equal(t, srv.URL, netErr.URL)
}

func TestCollyFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewCollyFetcher(Options{Timeout: 100 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	var netErr *NetworkError
	assert.True(t, errors.As(err, &netErr))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCollyFetcher_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewCollyFetcher(Options{}).Fetch(context.Background(), url)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Zero(t, netErr.StatusCode)
}

func TestNetworkErrorMessage(t *testing.T) {
	err := &NetworkError{URL: "https://www.screener.in/screens/1/x/?page=2", StatusCode: 503, Err: errors.New("Service Unavailable")}
	assert.Equal(t, "GET https://www.screener.in/screens/1/x/?page=2: status 503: Service Unavailable", err.Error())

	cause := errors.New("dial tcp: i/o timeout")
	err = &NetworkError{URL: "https://www.screener.in/", Err: cause}
	assert.Equal(t, "GET https://www.screener.in/: dial tcp: i/o timeout", err.Error())
	assert.ErrorIs(t, err, cause)
}
