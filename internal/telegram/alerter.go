package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
)

// Alerter posts safety alerts to a single staff chat.
type Alerter struct {
	bot    *bot.Bot
	chatID int64
	log    *slog.Logger
}

// NewAlerter creates an alerter that writes to chatID.
func NewAlerter(b *bot.Bot, chatID int64, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{bot: b, chatID: chatID, log: logger.With("component", "telegram_alerter")}
}

// SendCrisisAlert notifies staff that username needs follow-up. Message text
// is never forwarded; staff review it in the app.
func (a *Alerter) SendCrisisAlert(ctx context.Context, username, source string, at time.Time) error {
	text := fmt.Sprintf("Crisis alert: user %q triggered a high-risk check via %s at %s. Please follow up.",
		username, source, at.UTC().Format(time.RFC3339))

	if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   text,
	}); err != nil {
		a.log.ErrorContext(ctx, "Failed to send crisis alert", "username", username, "error", err)
		return fmt.Errorf("failed to send crisis alert: %w", err)
	}
	a.log.InfoContext(ctx, "Crisis alert sent", "username", username, "source", source)
	return nil
}
