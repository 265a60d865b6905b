// Package motd implements the core of the bot: the daily message generation
// episode with its format validation, similarity-based uniqueness guarantee,
// and bounded retry/fallback policy.
package motd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/motdbot/internal/ai"
	"github.com/edgard/motdbot/internal/config"
	"github.com/edgard/motdbot/internal/database"
)

// ErrNoCandidate is returned when a generation episode exhausts its attempt
// budget without producing a single scorable candidate. There is nothing to
// fall back to in that case, so the episode fails rather than committing a
// blank or malformed message.
var ErrNoCandidate = errors.New("no usable candidate generated")

// candidate is one scored generation attempt. Only candidates that passed
// format validation and embedding are tracked; exactly one candidate per
// episode becomes a persisted record.
type candidate struct {
	text    string
	vector  []float32
	score   float64
	attempt int
}

// Service generates, deduplicates, and persists the daily message. It is the
// single entry point shared by the scheduled post and the on-demand command.
type Service struct {
	log    *slog.Logger
	store  database.Store
	client ai.Client
	prompt *PromptContext
	cfg    config.GeneratorConfig
	loc    *time.Location
	flight singleflight.Group
}

// NewService creates the generation service. The configured time zone
// determines the civil date that keys each message.
func NewService(log *slog.Logger, store database.Store, client ai.Client, prompt *PromptContext, cfg config.GeneratorConfig) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return &Service{
		log:    log.With("component", "motd_service"),
		store:  store,
		client: client,
		prompt: prompt,
		cfg:    cfg,
		loc:    loc,
	}, nil
}

// Today returns the current civil date in the bot's configured time zone.
func (s *Service) Today() string {
	return time.Now().In(s.loc).Format("2006-01-02")
}

// GetOrCreateTodayMessage returns today's message, generating and persisting
// it first if it does not exist yet. Concurrent in-process callers for the
// same date are coalesced into a single generation episode; cross-process
// races are resolved by the store's per-date uniqueness constraint.
func (s *Service) GetOrCreateTodayMessage(ctx context.Context) (string, error) {
	today := s.Today()
	v, err, _ := s.flight.Do(today, func() (any, error) {
		return s.getOrCreate(ctx, today)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) getOrCreate(ctx context.Context, today string) (string, error) {
	existing, err := s.store.GetByDate(ctx, today)
	if err != nil {
		return "", fmt.Errorf("failed to check for existing message: %w", err)
	}
	if existing != nil {
		s.log.InfoContext(ctx, "Returning existing message for today", "date", today)
		return existing.Content, nil
	}

	chosen, err := s.runEpisode(ctx, today)
	if err != nil {
		return "", err
	}
	return s.commit(ctx, today, chosen)
}

// runEpisode runs the bounded generation loop: generate, validate format,
// embed, score against the similarity window, accept or track best-so-far.
// Attempts that fail validation or error at the provider consume budget but
// are never scored.
func (s *Service) runEpisode(ctx context.Context, today string) (*candidate, error) {
	recent, err := s.store.RecentMessages(ctx, s.cfg.HistoryDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	history, err := s.store.RecentEmbeddings(ctx, s.cfg.SimilarityDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load similarity window: %w", err)
	}

	s.log.InfoContext(ctx, "Starting generation episode",
		"date", today,
		"context_messages", len(recent),
		"similarity_window", len(history),
		"threshold", s.cfg.SimilarityThreshold,
		"max_attempts", s.cfg.MaxAttempts)

	systemPrompt := s.prompt.SystemPrompt()
	userPrompt := s.prompt.UserPrompt(recent)

	var best *candidate
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		text, err := s.client.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			s.log.WarnContext(ctx, "Generation attempt failed at provider", "attempt", attempt, "error", err)
			continue
		}

		if err := ValidateFormat(text); err != nil {
			s.log.WarnContext(ctx, "Generated message failed format validation", "attempt", attempt, "reason", err)
			continue
		}

		vector, err := s.client.Embed(ctx, text)
		if err != nil {
			s.log.WarnContext(ctx, "Embedding attempt failed at provider", "attempt", attempt, "error", err)
			continue
		}

		score, matched := MaxSimilarity(vector, history)
		cand := &candidate{text: text, vector: vector, score: score, attempt: attempt}

		// Strictly lower wins, so ties keep the earliest attempt.
		if best == nil || score < best.score {
			best = cand
		}

		if score <= s.cfg.SimilarityThreshold {
			s.log.InfoContext(ctx, "Similarity check passed, accepting candidate",
				"attempt", attempt, "score", score)
			return cand, nil
		}

		s.log.InfoContext(ctx, "Candidate too similar to recent history",
			"attempt", attempt, "score", score, "matched_index", matched)
	}

	if best == nil {
		return nil, fmt.Errorf("episode for %s exhausted %d attempts: %w", today, s.cfg.MaxAttempts, ErrNoCandidate)
	}

	s.log.WarnContext(ctx, "Attempt budget exhausted, committing least similar candidate",
		"date", today, "attempt", best.attempt, "score", best.score)
	return best, nil
}

// commit persists the chosen candidate and prunes expired history. If the
// insert loses the per-date race, the winner's record is returned instead.
// Persistence happens before any publishing so a publish failure can never
// lose the generated content.
func (s *Service) commit(ctx context.Context, today string, chosen *candidate) (string, error) {
	blob, err := database.EncodeVector(chosen.vector)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}

	record := &database.MessageRecord{
		Date:        today,
		Content:     chosen.text,
		ContentHash: hashContent(chosen.text),
		Embedding:   blob,
		PostedAt:    time.Now().UTC(),
	}

	if err := s.store.SaveMessage(ctx, record); err != nil {
		if errors.Is(err, database.ErrDuplicateDate) {
			s.log.InfoContext(ctx, "Another writer committed today's message first, re-reading", "date", today)
			existing, getErr := s.store.GetByDate(ctx, today)
			if getErr != nil {
				return "", fmt.Errorf("failed to re-read message after losing insert race: %w", getErr)
			}
			if existing == nil {
				return "", fmt.Errorf("message for %s vanished after duplicate insert: %w", today, err)
			}
			return existing.Content, nil
		}
		return "", fmt.Errorf("failed to persist message: %w", err)
	}

	if _, err := s.store.PruneOlderThan(ctx, s.cfg.HistoryDays); err != nil {
		// The message is already safely persisted; a failed prune is retried
		// on the next write.
		s.log.ErrorContext(ctx, "Retention prune failed", "error", err)
	}

	s.log.InfoContext(ctx, "Message generated and saved successfully",
		"date", today, "attempt", chosen.attempt, "score", chosen.score)
	return chosen.text, nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
