package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatusHandler returns a handler for the admin-only /motd_status command.
// It reports store diagnostics: total record count and whether today's
// message exists yet.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Status handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	log.InfoContext(ctx, "Handling /motd_status command", "chat_id", chatID, "user_id", update.Message.From.ID)

	count, err := h.deps.Store.Count(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to count messages", "error", err)
		h.reply(ctx, b, chatID, generalErrorMsg)
		return
	}

	today := h.deps.Service.Today()
	record, err := h.deps.Store.GetByDate(ctx, today)
	if err != nil {
		log.ErrorContext(ctx, "Failed to check today's message", "error", err)
		h.reply(ctx, b, chatID, generalErrorMsg)
		return
	}

	todayStatus := "not generated yet"
	if record != nil {
		todayStatus = fmt.Sprintf("posted at %s", record.PostedAt.Format("15:04:05 MST"))
	}

	text := fmt.Sprintf("Messages stored: %d\nToday (%s): %s", count, today, todayStatus)
	h.reply(ctx, b, chatID, text)
}

func (h statusHandler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send status reply", "error", err, "chat_id", chatID)
	}
}
