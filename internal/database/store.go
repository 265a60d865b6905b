package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrDuplicateDate is returned by SaveMessage when a record already exists
// for the given date. The unique index on messages.date is the serialization
// point for concurrent generation episodes, so callers must treat this as
// "lost the race": re-read the record instead of failing.
var ErrDuplicateDate = errors.New("message already exists for date")

// Store defines the interface for message history persistence.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetByDate retrieves the message for a civil date. Returns nil, nil if absent.
	GetByDate(ctx context.Context, date string) (*MessageRecord, error)

	// RecentMessages retrieves message contents within windowDays of today,
	// newest first. Used as textual context for generation.
	RecentMessages(ctx context.Context, windowDays int) ([]string, error)

	// RecentEmbeddings retrieves (content, embedding) pairs within windowDays
	// of today, newest first. Rows without an embedding or with an undecodable
	// one are excluded.
	RecentEmbeddings(ctx context.Context, windowDays int) ([]EmbeddedMessage, error)

	// SaveMessage inserts a new message record. Returns ErrDuplicateDate if a
	// record for the same date already exists.
	SaveMessage(ctx context.Context, record *MessageRecord) error

	// PruneOlderThan deletes records older than retentionDays from today and
	// returns the number of rows removed. Safe to run repeatedly.
	PruneOlderThan(ctx context.Context, retentionDays int) (int64, error)

	// Count returns the total number of stored messages, for diagnostics.
	Count(ctx context.Context) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	loc    *time.Location
}

// NewStore creates a new Store implementation backed by sqlx. The location
// defines the civil "today" used by the window and retention queries.
func NewStore(db *sqlx.DB, logger *slog.Logger, loc *time.Location) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.UTC
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		loc:    loc,
	}
}

const dateLayout = "2006-01-02"

func (s *sqlxStore) cutoffDate(windowDays int) string {
	return time.Now().In(s.loc).AddDate(0, 0, -windowDays).Format(dateLayout)
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetByDate(ctx context.Context, date string) (*MessageRecord, error) {
	if date == "" {
		return nil, fmt.Errorf("date cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var record MessageRecord
	query := `SELECT id, date, content, content_hash, embedding, posted_at
	          FROM messages WHERE date = ?`

	err := s.db.GetContext(ctx, &record, query, date)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// The normal "nothing yet today" case, not an error.
		s.logger.DebugContext(ctx, "No message found for date", "date", date)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching message",
			"date", date, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting message by date", "date", date, "error", err)
		return nil, fmt.Errorf("failed to get message for date %s: %w", date, err)
	}

	s.logger.DebugContext(ctx, "Successfully retrieved message", "date", date)
	return &record, nil
}

func (s *sqlxStore) RecentMessages(ctx context.Context, windowDays int) ([]string, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window days must be positive, got %d", windowDays)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cutoff := s.cutoffDate(windowDays)
	var contents []string
	query := `SELECT content FROM messages WHERE date >= ? ORDER BY date DESC`

	s.logger.DebugContext(ctx, "Fetching recent messages", "cutoff", cutoff, "window_days", windowDays)
	err := s.db.SelectContext(ctx, &contents, query, cutoff)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching recent messages",
			"error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf("failed to get messages since %s: %w", cutoff, err)
	}

	s.logger.DebugContext(ctx, "Fetched recent messages successfully", "count", len(contents))
	return contents, nil
}

func (s *sqlxStore) RecentEmbeddings(ctx context.Context, windowDays int) ([]EmbeddedMessage, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("window days must be positive, got %d", windowDays)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cutoff := s.cutoffDate(windowDays)
	var rows []struct {
		Content   string `db:"content"`
		Embedding []byte `db:"embedding"`
	}
	query := `SELECT content, embedding FROM messages
	          WHERE date >= ? AND embedding IS NOT NULL
	          ORDER BY date DESC`

	err := s.db.SelectContext(ctx, &rows, query, cutoff)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching embeddings",
			"error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent embeddings", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf("failed to get embeddings since %s: %w", cutoff, err)
	}

	results := make([]EmbeddedMessage, 0, len(rows))
	for _, row := range rows {
		vec, err := DecodeVector(row.Embedding)
		if err != nil {
			// A corrupt blob must not break similarity checking for the rest.
			s.logger.WarnContext(ctx, "Skipping undecodable embedding", "error", err)
			continue
		}
		if len(vec) == 0 {
			continue
		}
		results = append(results, EmbeddedMessage{Content: row.Content, Embedding: vec})
	}

	s.logger.DebugContext(ctx, "Fetched recent embeddings successfully",
		"rows", len(rows), "usable", len(results))
	return results, nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, record *MessageRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil message record")
	}
	if record.Date == "" {
		return fmt.Errorf("message record must have a date")
	}
	if record.Content == "" {
		return fmt.Errorf("message record must have non-empty content")
	}
	if record.ContentHash == "" {
		return fmt.Errorf("message record must have a content hash")
	}
	if record.PostedAt.IsZero() {
		record.PostedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving message",
			"date", record.Date, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO messages (date, content, content_hash, embedding, posted_at)
        VALUES (:date, :content, :content_hash, :embedding, :posted_at);
    `

	result, err := tx.NamedExecContext(ctx, query, record)
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.InfoContext(ctx, "Insert lost the per-date uniqueness race",
				"date", record.Date)
			return fmt.Errorf("date %s: %w", record.Date, ErrDuplicateDate)
		}
		s.logger.ErrorContext(ctx, "Error saving message", "date", record.Date, "error", err)
		return fmt.Errorf("failed to save message for date %s: %w", record.Date, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		record.ID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"date", record.Date, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "date", record.Date, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message saved successfully",
		"date", record.Date, "message_id", record.ID)
	return nil
}

func (s *sqlxStore) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	cutoff := s.cutoffDate(retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE date < ?`, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning old messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to prune messages older than %s: %w", cutoff, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get pruned row count", "error", err)
		return 0, nil
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Pruned old messages", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

func (s *sqlxStore) Count(ctx context.Context) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages`); err != nil {
		s.logger.ErrorContext(ctx, "Error counting messages", "error", err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// isUniqueViolation reports whether err is a sqlite unique-constraint failure.
// modernc.org/sqlite surfaces these as textual driver errors, so string
// matching is the practical check.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") && strings.Contains(msg, "unique")
}
