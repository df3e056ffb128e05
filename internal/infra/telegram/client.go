// internal/infra/telegram/client.go
package telegram

import (
	"fmt"
	"inspection_cycle_sync/internal/infra/logger"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// NewSendOnlyBot creates a bot for outgoing alerts. It is never started, so
// no updates are polled and no handlers are registered.
func NewSendOnlyBot(token string, timeout time.Duration) (*telebot.Bot, error) {
	b, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
		OnError: func(err error, _ telebot.Context) {
			logger.Component("telegram").WithError(err).Error("Telebot error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// SendMessage sends a text message to the specified chat.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := telebot.ChatID(recipientChatID) // Alert chats are usually groups
	_, err := tba.bot.Send(recipient, text, options)
	return err
}
