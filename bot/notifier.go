package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLen is Telegram's limit on a text message
const maxMessageLen = 4096

// Sender is the part of tgbotapi.BotAPI the bot uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Notifier sends texts and files to chats
type Notifier struct {
	api Sender
}

// NewNotifier creates a Notifier on top of a bot API
func NewNotifier(api Sender) *Notifier {
	return &Notifier{api: api}
}

// SendText sends text as a reply, split over several messages when too long
func (n *Notifier) SendText(chatID int64, replyTo int, text string) error {
	for i, part := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := n.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

// SendDocument uploads data as a file named name
func (n *Notifier) SendDocument(chatID int64, replyTo int, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if replyTo != 0 {
		doc.ReplyToMessageID = replyTo
	}
	if _, err := n.api.Send(doc); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	return nil
}

// splitMessage breaks text on line boundaries into parts of at most maxLen bytes
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if current.Len()+len(line) > maxLen && current.Len() > 0 {
			parts = append(parts, strings.TrimSuffix(current.String(), "\n"))
			current.Reset()
		}
		// If a single line is too long, split it on a rune boundary
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		current.WriteString(line)
		current.WriteString("\n")
	}

	if rest := strings.TrimSuffix(current.String(), "\n"); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
