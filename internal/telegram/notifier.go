package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends coaching nudges to the owner chat.
type Notifier struct {
	bot    botAPI
	chatID int64
}

// NewNotifier creates a Notifier for the given chat.
func NewNotifier(bot botAPI, chatID int64) *Notifier {
	return &Notifier{bot: bot, chatID: chatID}
}

// Deliver sends message as a plain text and returns when the Bot API answers
// or ctx ends, whichever comes first. The Bot API client takes no context, so
// a send abandoned on ctx finishes in the background, bounded by the HTTP
// client's own timeout.
func (n *Notifier) Deliver(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, "💡 "+message))
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
