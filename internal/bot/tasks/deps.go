// Package tasks implements scheduled tasks for the MOTD bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"

	"github.com/edgard/motdbot/internal/config"
	"github.com/edgard/motdbot/internal/database"
	"github.com/edgard/motdbot/internal/motd"
	"github.com/edgard/motdbot/internal/telegram"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Service   *motd.Service
	Publisher *telegram.Publisher
	Config    *config.Config
}
