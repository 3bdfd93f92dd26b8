package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"screener-scraper/db"
	"screener-scraper/models"
	"screener-scraper/scraper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	data  *models.Dataset
	err   error
	pages int
}

func (f *fakeFetcher) FetchWithProgress(ctx context.Context, url string, onPage scraper.ProgressFunc) (*models.Dataset, error) {
	for p := 1; p <= f.pages; p++ {
		onPage(p, 25)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type document struct {
	name string
	data []byte
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	docs  []document
}

func (n *fakeNotifier) SendText(chatID int64, replyTo int, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *fakeNotifier) SendDocument(chatID int64, replyTo int, name string, data []byte, caption string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.docs = append(n.docs, document{name: name, data: data})
	return nil
}

func (n *fakeNotifier) lastText() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.texts) == 0 {
		return ""
	}
	return n.texts[len(n.texts)-1]
}

type fakeHistory struct {
	started  []string
	finished map[int][2]int
	failed   map[int]error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{finished: map[int][2]int{}, failed: map[int]error{}}
}

func (h *fakeHistory) StartRun(ctx context.Context, url, source string) (*db.FetchRun, error) {
	h.started = append(h.started, source+" "+url)
	return &db.FetchRun{ID: len(h.started), URL: url, Source: source, Status: db.StatusInProgress}, nil
}

func (h *fakeHistory) FinishRun(ctx context.Context, runID, rowsCount, pagesCount int) error {
	h.finished[runID] = [2]int{rowsCount, pagesCount}
	return nil
}

func (h *fakeHistory) FailRun(ctx context.Context, runID, pagesCount int, runErr error) error {
	h.failed[runID] = runErr
	return nil
}

type fakeSheets struct {
	names []string
	err   error
}

func (f *fakeSheets) SpreadsheetID() string { return "sheet123" }

func (f *fakeSheets) CreateSheetAndWriteDataset(ctx context.Context, sheetName string, ds *models.Dataset, sourceURL string) (string, int64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	f.names = append(f.names, sheetName)
	return sheetName, 7, nil
}

func sampleData() *models.Dataset {
	ds := models.NewDataset("S.No.", "Name")
	ds.AddRow(models.Row{"S.No.": "1", "Name": "TCS"})
	ds.AddRow(models.Row{"S.No.": "2", "Name": "Infosys"})
	return ds
}

var fixedNow = func() time.Time { return time.Date(2024, 1, 31, 15, 45, 2, 0, time.UTC) }

const jobURL = "https://www.screener.in/screens/1/x/"

func TestProcess_Success(t *testing.T) {
	n := &fakeNotifier{}
	h := newFakeHistory()
	sh := &fakeSheets{}
	s := NewScheduler(&fakeFetcher{data: sampleData(), pages: 2}, n, Options{History: h, Sheets: sh, Now: fixedNow})

	s.process(context.Background(), Job{ChatID: 1, MessageID: 10, URL: jobURL})

	require.Len(t, n.docs, 2)
	assert.Equal(t, "screener_data_20240131_154502.csv", n.docs[0].name)
	assert.Equal(t, "screener_data_20240131_154502.json", n.docs[1].name)
	assert.True(t, strings.HasPrefix(string(n.docs[0].data), "S.No.,Name\n"))

	assert.Contains(t, n.texts, "📄 Page 1 fetched (25 rows)")
	assert.Contains(t, n.texts, "📄 Page 2 fetched (25 rows)")
	assert.Contains(t, n.lastText(), "Fetched 2 records with 2 columns from 2 pages.")
	assert.Contains(t, n.lastText(), "https://docs.google.com/spreadsheets/d/sheet123/edit#gid=7")

	assert.Equal(t, []string{"bot " + jobURL}, h.started)
	assert.Equal(t, [2]int{2, 2}, h.finished[1])
	assert.Equal(t, []string{"screener 2024-01-31 15:45:02"}, sh.names)
}

func TestProcess_FetchError(t *testing.T) {
	n := &fakeNotifier{}
	h := newFakeHistory()
	fetchErr := errors.New("network error fetching data: status 503")
	s := NewScheduler(&fakeFetcher{err: fetchErr, pages: 1}, n, Options{History: h})

	s.process(context.Background(), Job{ChatID: 1, URL: jobURL})

	assert.Empty(t, n.docs)
	assert.Equal(t, "❌ Error processing request: network error fetching data: status 503", n.lastText())
	assert.Equal(t, fetchErr, h.failed[1])
	assert.Empty(t, h.finished)
}

func TestProcess_NoRecords(t *testing.T) {
	n := &fakeNotifier{}
	s := NewScheduler(&fakeFetcher{data: models.NewDataset()}, n, Options{})

	s.process(context.Background(), Job{ChatID: 1, URL: jobURL})

	assert.Empty(t, n.docs)
	assert.Equal(t, "⚠️ No records found at this URL.", n.lastText())
}

func TestProcess_SheetsFailureStillSendsFiles(t *testing.T) {
	n := &fakeNotifier{}
	sh := &fakeSheets{err: errors.New("quota exceeded")}
	s := NewScheduler(&fakeFetcher{data: sampleData(), pages: 1}, n, Options{Sheets: sh, Now: fixedNow})

	s.process(context.Background(), Job{ChatID: 1, URL: jobURL})

	assert.Len(t, n.docs, 2)
	assert.Contains(t, n.texts, "⚠️ Google Sheets export failed: quota exceeded")
	assert.NotContains(t, n.lastText(), "View spreadsheet")
}

func TestEnqueue_QueueFull(t *testing.T) {
	s := NewScheduler(&fakeFetcher{}, &fakeNotifier{}, Options{QueueSize: 1})

	pos, err := s.Enqueue(Job{URL: jobURL})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	_, err = s.Enqueue(Job{URL: jobURL})
	assert.ErrorIs(t, err, ErrQueueFull)
}

// blockingFetcher holds every fetch until released and records the URLs it saw
type blockingFetcher struct {
	mu      sync.Mutex
	active  int
	maxSeen int
	urls    []string
	done    chan struct{}
}

func (f *blockingFetcher) FetchWithProgress(ctx context.Context, url string, onPage scraper.ProgressFunc) (*models.Dataset, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.urls = append(f.urls, url)
	f.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	f.done <- struct{}{}
	return models.NewDataset(), nil
}

func TestWorker_RunsJobsSequentially(t *testing.T) {
	f := &blockingFetcher{done: make(chan struct{}, 3)}
	s := NewScheduler(f, &fakeNotifier{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	for _, u := range []string{"a", "b", "c"} {
		_, err := s.Enqueue(Job{URL: "https://www.screener.in/screens/" + u})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-f.done:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not complete")
		}
	}

	cancel()
	s.Wait()

	assert.Equal(t, 1, f.maxSeen)
	assert.Equal(t, []string{
		"https://www.screener.in/screens/a",
		"https://www.screener.in/screens/b",
		"https://www.screener.in/screens/c",
	}, f.urls)
}
