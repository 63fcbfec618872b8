package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramAlerter sends operator alerts to configured chat IDs. Send
// failures are logged, never propagated; losing an alert must not affect
// the reconcile outcome.
type TelegramAlerter struct {
	bot   *tgbotapi.BotAPI
	chats []int64
	log   *zerolog.Logger
}

// NewTelegramAlerter constructs an alerter for the operator chats.
func NewTelegramAlerter(botToken string, chats []int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramAlerter{bot: bot, chats: chats, log: logger}, nil
}

// Alert delivers text to every operator chat.
func (t *TelegramAlerter) Alert(text string) {
	for _, chatID := range t.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := t.bot.Send(msg); err != nil {
			t.log.Error().Err(err).Int64("chat_id", chatID).Msg("operator alert failed")
		}
	}
}
