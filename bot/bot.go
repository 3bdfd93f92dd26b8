package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"screener-scraper/scheduler"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	welcomeText = "Welcome! Send me a screener.in screen URL and I will fetch every page of it. " +
		"Results come back as CSV and JSON files."
	helpText = "Commands:\n/start - Start the bot\n/help - Show this help\n\n" +
		"Just send me a screener.in screen URL, for example:\n" +
		"https://www.screener.in/screens/2448025/sales-profit-20-eps-up/"
	unauthorizedText = "Sorry, you are not authorized to use this bot."
)

// Queue accepts fetch jobs
type Queue interface {
	Enqueue(job scheduler.Job) (int, error)
}

// Options configures a Bot
type Options struct {
	// AllowedUsers lists who may use the bot. Empty allows everyone.
	AllowedUsers   []int64
	SpreadsheetURL string
	ValidateURL    func(url string) bool
}

// Bot turns chat messages into queued fetch jobs
type Bot struct {
	api      Sender
	notifier *Notifier
	queue    Queue
	allowed  map[int64]bool
	opts     Options
}

// New creates a Bot
func New(api Sender, queue Queue, opts Options) *Bot {
	allowed := make(map[int64]bool, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = true
	}
	if len(allowed) == 0 {
		log.Warn("no allowed users configured, the bot answers everyone")
	}
	if opts.ValidateURL == nil {
		opts.ValidateURL = func(string) bool { return true }
	}

	return &Bot{
		api:      api,
		notifier: NewNotifier(api),
		queue:    queue,
		allowed:  allowed,
		opts:     opts,
	}
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

// Run handles updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) {
	// start from the latest update to skip old ones
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.Offset = -1

	updates := api.GetUpdatesChan(updateConfig)
	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(update)
		}
	}
}

// HandleUpdate answers one update
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	if !b.isAllowed(userID) {
		log.Warn("unauthorized user", "user", userID)
		b.reply(chatID, 0, unauthorizedText)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	url := strings.TrimSpace(msg.Text)
	if url == "" {
		b.reply(chatID, msg.MessageID, "Please send me a screener.in URL.")
		return
	}
	if !b.opts.ValidateURL(url) {
		b.reply(chatID, msg.MessageID, "Please enter a valid screener.in URL.")
		return
	}

	pos, err := b.queue.Enqueue(scheduler.Job{ChatID: chatID, MessageID: msg.MessageID, URL: url})
	if err != nil {
		if !errors.Is(err, scheduler.ErrQueueFull) {
			log.Error("failed to queue job", "err", err)
		}
		b.reply(chatID, msg.MessageID, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	log.Info("queued job", "user", userID, "url", url, "position", pos)
	b.reply(chatID, msg.MessageID, fmt.Sprintf(
		"📝 Request received! Position in queue: %d. You'll receive status updates as the fetch progresses.", pos))
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.reply(chatID, 0, welcomeText)
		if b.opts.SpreadsheetURL == "" {
			return
		}
		// Send spreadsheet link as separate message and pin it
		sent, err := b.api.Send(tgbotapi.NewMessage(chatID, "📊 Spreadsheet: "+b.opts.SpreadsheetURL))
		if err != nil {
			log.Error("failed to send spreadsheet link", "err", err)
			return
		}
		pin := tgbotapi.PinChatMessageConfig{
			ChatID:    chatID,
			MessageID: sent.MessageID,
		}
		if _, err := b.api.Request(pin); err != nil {
			log.Warn("failed to pin spreadsheet link", "err", err)
		}
	case "help":
		b.reply(chatID, 0, helpText)
	default:
		b.reply(chatID, 0, "Unknown command. Use /help for available commands.")
	}
}

func (b *Bot) reply(chatID int64, replyTo int, text string) {
	if err := b.notifier.SendText(chatID, replyTo, text); err != nil {
		log.Error("failed to reply", "chat", chatID, "err", err)
	}
}
