package bot

import (
	"errors"
	"strings"
	"testing"

	"screener-scraper/scheduler"
	"screener-scraper/scraper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	err      error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) texts() []string {
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeQueue struct {
	jobs []scheduler.Job
	err  error
}

func (q *fakeQueue) Enqueue(job scheduler.Job) (int, error) {
	if q.err != nil {
		return 0, q.err
	}
	q.jobs = append(q.jobs, job)
	return len(q.jobs), nil
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return tgbotapi.Update{Message: msg}
}

func newTestBot(api *fakeAPI, q *fakeQueue, opts Options) *Bot {
	if opts.ValidateURL == nil {
		opts.ValidateURL = scraper.ValidateURL
	}
	return New(api, q, opts)
}

const screenURL = "https://www.screener.in/screens/2448025/sales-profit-20-eps-up/"

func TestHandleUpdate_QueuesValidURL(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{AllowedUsers: []int64{42}})

	b.HandleUpdate(textUpdate(42, "  "+screenURL+" "))

	require.Len(t, q.jobs, 1)
	assert.Equal(t, scheduler.Job{ChatID: 42, MessageID: 7, URL: screenURL}, q.jobs[0])
	require.Len(t, api.texts(), 1)
	assert.Contains(t, api.texts()[0], "Position in queue: 1")
}

func TestHandleUpdate_Unauthorized(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{AllowedUsers: []int64{42}})

	b.HandleUpdate(textUpdate(13, screenURL))
	b.HandleUpdate(textUpdate(13, "/start"))

	assert.Empty(t, q.jobs)
	assert.Equal(t, []string{unauthorizedText, unauthorizedText}, api.texts())
}

func TestHandleUpdate_EmptyAllowListAllowsEveryone(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{})

	b.HandleUpdate(textUpdate(13, screenURL))
	assert.Len(t, q.jobs, 1)
}

func TestHandleUpdate_InvalidURL(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{})

	b.HandleUpdate(textUpdate(42, "https://example.com/screens/1"))

	assert.Empty(t, q.jobs)
	assert.Equal(t, []string{"Please enter a valid screener.in URL."}, api.texts())
}

func TestHandleUpdate_QueueFull(t *testing.T) {
	api := &fakeAPI{}
	q := &fakeQueue{err: scheduler.ErrQueueFull}
	b := newTestBot(api, q, Options{})

	b.HandleUpdate(textUpdate(42, screenURL))
	assert.Equal(t, []string{"❌ Error: queue is full, try again later"}, api.texts())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		command  string
		expected string
	}{
		{"/help", helpText},
		{"/start", welcomeText},
		{"/config", "Unknown command. Use /help for available commands."},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			api, q := &fakeAPI{}, &fakeQueue{}
			b := newTestBot(api, q, Options{})

			b.HandleUpdate(textUpdate(42, tt.command))

			assert.Equal(t, []string{tt.expected}, api.texts())
			assert.Empty(t, q.jobs)
		})
	}
}

func TestStart_PinsSpreadsheet(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{SpreadsheetURL: "https://docs.google.com/spreadsheets/d/abc/edit"})

	b.HandleUpdate(textUpdate(42, "/start"))

	assert.Equal(t, []string{welcomeText, "📊 Spreadsheet: https://docs.google.com/spreadsheets/d/abc/edit"}, api.texts())
	require.Len(t, api.requests, 1)
	pin, ok := api.requests[0].(tgbotapi.PinChatMessageConfig)
	require.True(t, ok)
	assert.Equal(t, 102, pin.MessageID)
}

func TestHandleUpdate_IgnoresNonMessages(t *testing.T) {
	api, q := &fakeAPI{}, &fakeQueue{}
	b := newTestBot(api, q, Options{})

	b.HandleUpdate(tgbotapi.Update{})
	assert.Empty(t, api.sent)
}

func TestNotifier_SendDocument(t *testing.T) {
	api := &fakeAPI{}
	n := NewNotifier(api)

	require.NoError(t, n.SendDocument(42, 7, "screener_data_20240131_154502.csv", []byte("S.No.\n1\n"), "62 rows"))

	require.Len(t, api.sent, 1)
	doc, ok := api.sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), doc.ChatID)
	assert.Equal(t, 7, doc.ReplyToMessageID)
	assert.Equal(t, "62 rows", doc.Caption)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "screener_data_20240131_154502.csv", file.Name)
}

func TestNotifier_SendError(t *testing.T) {
	api := &fakeAPI{err: errors.New("Too Many Requests")}
	err := NewNotifier(api).SendText(42, 0, "hi")
	assert.ErrorContains(t, err, "Too Many Requests")
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("aaaa\nbbbb\ncccc", 9)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)

	// never cut inside a rune
	for _, p := range splitMessage(strings.Repeat("₹", 10), 10) {
		assert.True(t, len(p) <= 10)
		assert.Equal(t, 0, len(p)%3, "part %q splits a rune", p)
	}
}
