package tasks

import (
	"context"
	"fmt"
	"time"
)

// newDailyPostTask creates the scheduled task function for producing and
// publishing the daily message. Retention pruning runs first so the history
// and similarity windows read from an already trimmed table.
func newDailyPostTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_post")
	historyDays := deps.Config.Generator.HistoryDays

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled daily post task...")
		startTime := time.Now()

		if deleted, err := deps.Store.PruneOlderThan(ctx, historyDays); err != nil {
			log.WarnContext(ctx, "Retention pruning failed, continuing", "error", err)
		} else if deleted > 0 {
			log.InfoContext(ctx, "Pruned old messages", "deleted", deleted, "retention_days", historyDays)
		}

		content, err := deps.Service.GetOrCreateTodayMessage(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Daily post task failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("daily post generation failed: %w", err)
		}

		// The message is already persisted at this point. A publish failure
		// must not fail the task hard enough to discard it, so it is logged
		// and surfaced but the stored row stays authoritative.
		if err := deps.Publisher.Publish(ctx, content); err != nil {
			log.ErrorContext(ctx, "Publishing daily post failed", "error", err, "duration", time.Since(startTime))
			return fmt.Errorf("daily post publish failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled daily post task completed successfully", "duration", time.Since(startTime))
		return nil
	}
}
