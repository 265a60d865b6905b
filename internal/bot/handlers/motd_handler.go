package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	generatingNotice = "Generating today's message..."
	generalErrorMsg  = "Sorry, I encountered an error generating today's message. Please try again later."
)

// NewMOTDHandler returns a handler for the /motd command. It serves today's
// message from the store when present, and otherwise runs a full generation
// episode before replying.
func NewMOTDHandler(deps HandlerDeps) bot.HandlerFunc {
	return motdHandler{deps}.Handle
}

type motdHandler struct {
	deps HandlerDeps
}

func (h motdHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "motd")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "MOTD handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	log.InfoContext(ctx, "Handling /motd command", "chat_id", chatID, "user_id", update.Message.From.ID)

	// Only announce the wait when generation is actually needed.
	existing, err := h.deps.Store.GetByDate(ctx, h.deps.Service.Today())
	if err != nil {
		log.ErrorContext(ctx, "Failed to check for existing message", "error", err)
		h.reply(ctx, b, chatID, generalErrorMsg, log)
		return
	}
	if existing != nil {
		h.reply(ctx, b, chatID, existing.Content, log)
		return
	}

	h.reply(ctx, b, chatID, generatingNotice, log)

	content, err := h.deps.Service.GetOrCreateTodayMessage(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to generate today's message", "error", err)
		h.reply(ctx, b, chatID, generalErrorMsg, log)
		return
	}

	h.reply(ctx, b, chatID, content, log)
}

func (h motdHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string, log *slog.Logger) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
	}
}
