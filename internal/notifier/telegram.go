package notifier

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/mantraapp1/23-oct-mantra-sub003/pkg/logger"
)

// TelegramChannel sends operator alerts to a fixed chat. The bot is
// send-only; it never polls for updates.
type TelegramChannel struct {
	logger *logger.Logger
	bot    *bot.Bot
	chatID int64
}

func NewTelegramChannel(token string, chatID int64, logger *logger.Logger) (*TelegramChannel, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramChannel{logger: logger, bot: b, chatID: chatID}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, subject, message string) error {
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   subject + "\n\n" + message,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
