package database

import "time"

// MessageRecord is one published message of the day. Exactly one record
// exists per civil date; records are never updated after insertion and are
// only removed by retention pruning.
type MessageRecord struct {
	ID          uint      `db:"id"`
	Date        string    `db:"date"` // civil date, YYYY-MM-DD in the bot's time zone
	Content     string    `db:"content"`
	ContentHash string    `db:"content_hash"`
	Embedding   []byte    `db:"embedding"` // little-endian float32 vector, may be nil
	PostedAt    time.Time `db:"posted_at"`
}

// EmbeddedMessage pairs a historical message with its decoded embedding
// vector, for similarity scoring against new candidates.
type EmbeddedMessage struct {
	Content   string
	Embedding []float32
}
