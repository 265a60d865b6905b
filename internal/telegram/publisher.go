package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Publisher delivers the daily message to the configured channel.
// In dry-run mode it logs the message instead of sending it.
type Publisher struct {
	bot       *bot.Bot
	log       *slog.Logger
	channelID string
	dryRun    bool
}

// NewPublisher creates a channel publisher. channelID may be a numeric chat
// ID or an "@channelname" reference.
func NewPublisher(b *bot.Bot, log *slog.Logger, channelID string, dryRun bool) *Publisher {
	return &Publisher{
		bot:       b,
		log:       log.With("component", "publisher"),
		channelID: channelID,
		dryRun:    dryRun,
	}
}

// Publish sends the message to the channel. A failure here never rolls back
// the already-persisted record; the caller logs and moves on.
func (p *Publisher) Publish(ctx context.Context, text string) error {
	if p.dryRun {
		p.log.InfoContext(ctx, "DRY RUN MODE - would have posted message", "channel_id", p.channelID, "text", text)
		return nil
	}

	_, err := p.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: p.channelID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to post message to channel %s: %w", p.channelID, err)
	}

	p.log.InfoContext(ctx, "Message posted to channel", "channel_id", p.channelID)
	return nil
}
