package handlers

import (
	"log/slog"

	"github.com/edgard/motdbot/internal/config"
	"github.com/edgard/motdbot/internal/database"
	"github.com/edgard/motdbot/internal/motd"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Service *motd.Service
}
