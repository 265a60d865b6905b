package motd_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgard/motdbot/internal/config"
	"github.com/edgard/motdbot/internal/database"
	"github.com/edgard/motdbot/internal/motd"
)

// fakeStore is an in-memory Store keyed by date, safe for concurrent use.
type fakeStore struct {
	mu         sync.Mutex
	records    map[string]*database.MessageRecord
	embeddings []database.EmbeddedMessage
	saves      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*database.MessageRecord)}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) GetByDate(_ context.Context, date string) (*database.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[date]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) RecentMessages(context.Context, int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, rec := range s.records {
		out = append(out, rec.Content)
	}
	return out, nil
}

func (s *fakeStore) RecentEmbeddings(context.Context, int) ([]database.EmbeddedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.EmbeddedMessage(nil), s.embeddings...), nil
}

func (s *fakeStore) SaveMessage(_ context.Context, record *database.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if _, exists := s.records[record.Date]; exists {
		return fmt.Errorf("date %s: %w", record.Date, database.ErrDuplicateDate)
	}
	cp := *record
	s.records[record.Date] = &cp
	return nil
}

func (s *fakeStore) PruneOlderThan(context.Context, int) (int64, error) { return 0, nil }

func (s *fakeStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), nil
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

// fakeClient replays scripted completions and embeddings.
type fakeClient struct {
	mu          sync.Mutex
	completions []completionStep
	embeddings  [][]float32
	completes   int
	embeds      int
}

type completionStep struct {
	text string
	err  error
}

func (c *fakeClient) Complete(context.Context, string, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.completes >= len(c.completions) {
		return "", errors.New("no more scripted completions")
	}
	step := c.completions[c.completes]
	c.completes++
	return step.text, step.err
}

func (c *fakeClient) Embed(context.Context, string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.embeds >= len(c.embeddings) {
		return nil, errors.New("no more scripted embeddings")
	}
	vec := c.embeddings[c.embeds]
	c.embeds++
	if vec == nil {
		return nil, errors.New("scripted embedding failure")
	}
	return vec, nil
}

func testGeneratorConfig() config.GeneratorConfig {
	return config.GeneratorConfig{
		Timezone:            "UTC",
		HistoryDays:         365,
		SimilarityDays:      90,
		SimilarityThreshold: 0.85,
		MaxAttempts:         5,
	}
}

func newTestService(t *testing.T, store database.Store, client *fakeClient, cfg config.GeneratorConfig) *motd.Service {
	t.Helper()

	prompt := motd.LoadPromptContext("", "", discardLogger())
	svc, err := motd.NewService(discardLogger(), store, client, prompt, cfg)
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc
}

// uniqueText makes a distinct message that passes format validation.
func uniqueText(n int) string {
	return fmt.Sprintf("Observation number %d about the protocol today. The pace of delivery never slows down here.\n\nThanks to the developers doing the real work.", n)
}

func TestGetOrCreateAcceptsUniqueCandidate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.embeddings = []database.EmbeddedMessage{
		{Content: "old", Embedding: []float32{1, 0}},
	}
	client := &fakeClient{
		completions: []completionStep{{text: uniqueText(1)}},
		embeddings:  [][]float32{{0, 1}},
	}
	svc := newTestService(t, store, client, testGeneratorConfig())

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != uniqueText(1) {
		t.Errorf("unexpected content: %q", content)
	}
	if client.completes != 1 {
		t.Errorf("completions = %d, want 1", client.completes)
	}

	rec, err := store.GetByDate(context.Background(), svc.Today())
	if err != nil || rec == nil {
		t.Fatalf("expected persisted record, got %v, %v", rec, err)
	}
	if rec.ContentHash == "" || len(rec.ContentHash) != 64 {
		t.Errorf("content hash not a sha256 hex digest: %q", rec.ContentHash)
	}
	if len(rec.Embedding) == 0 {
		t.Error("embedding blob not persisted")
	}
}

func TestGetOrCreateRetriesUntilUnderThreshold(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.embeddings = []database.EmbeddedMessage{
		{Content: "old", Embedding: []float32{1, 0}},
	}
	// Attempts 1 and 2 are near-duplicates of history; attempt 3 is orthogonal.
	client := &fakeClient{
		completions: []completionStep{
			{text: uniqueText(1)},
			{text: uniqueText(2)},
			{text: uniqueText(3)},
		},
		embeddings: [][]float32{
			{1, 0},
			{0.99, 0.14},
			{0, 1},
		},
	}
	svc := newTestService(t, store, client, testGeneratorConfig())

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != uniqueText(3) {
		t.Errorf("expected third attempt to win, got %q", content)
	}
	if client.completes != 3 {
		t.Errorf("completions = %d, want 3", client.completes)
	}
}

func TestGetOrCreateFallsBackToLeastSimilar(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.embeddings = []database.EmbeddedMessage{
		{Content: "old", Embedding: []float32{1, 0}},
	}
	// Every attempt scores above the threshold; attempt 2 scores lowest.
	client := &fakeClient{
		completions: []completionStep{
			{text: uniqueText(1)},
			{text: uniqueText(2)},
			{text: uniqueText(3)},
			{text: uniqueText(4)},
			{text: uniqueText(5)},
		},
		embeddings: [][]float32{
			{0.99, 0.1},
			{0.90, 0.4},
			{0.97, 0.2},
			{0.95, 0.3},
			{0.98, 0.15},
		},
	}
	svc := newTestService(t, store, client, testGeneratorConfig())

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != uniqueText(2) {
		t.Errorf("expected least similar attempt to win, got %q", content)
	}
	if client.completes != 5 {
		t.Errorf("completions = %d, want full budget of 5", client.completes)
	}
}

func TestGetOrCreateFallbackTiePrefersEarliestAttempt(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.embeddings = []database.EmbeddedMessage{
		{Content: "old", Embedding: []float32{1, 0}},
	}
	cfg := testGeneratorConfig()
	cfg.MaxAttempts = 2
	client := &fakeClient{
		completions: []completionStep{
			{text: uniqueText(1)},
			{text: uniqueText(2)},
		},
		embeddings: [][]float32{
			{0.9, 0.435889894},
			{0.9, 0.435889894},
		},
	}
	svc := newTestService(t, store, client, cfg)

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != uniqueText(1) {
		t.Errorf("tie should keep the earliest attempt, got %q", content)
	}
}

func TestGetOrCreateReturnsExistingMessage(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeClient{}
	svc := newTestService(t, store, client, testGeneratorConfig())

	today := svc.Today()
	store.records[today] = &database.MessageRecord{
		Date:     today,
		Content:  "already here",
		PostedAt: time.Now().UTC(),
	}

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != "already here" {
		t.Errorf("expected existing content, got %q", content)
	}
	if client.completes != 0 {
		t.Errorf("no generation should happen when a message exists, got %d completions", client.completes)
	}
}

func TestGetOrCreateNoCandidateAfterProviderErrors(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	steps := make([]completionStep, 5)
	for i := range steps {
		steps[i] = completionStep{err: errors.New("provider down")}
	}
	client := &fakeClient{completions: steps}
	svc := newTestService(t, store, client, testGeneratorConfig())

	_, err := svc.GetOrCreateTodayMessage(context.Background())
	if !errors.Is(err, motd.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	if client.completes != 5 {
		t.Errorf("completions = %d, want full budget of 5", client.completes)
	}
	if store.saves != 0 {
		t.Errorf("nothing should be persisted, got %d saves", store.saves)
	}
}

func TestGetOrCreateInvalidFormatConsumesBudgetWithoutEmbedding(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	cfg := testGeneratorConfig()
	cfg.MaxAttempts = 2
	client := &fakeClient{
		completions: []completionStep{
			{text: "too short"},
			{text: "no separator in this message at all despite having sentences. Really none. Thanks though to the team."},
		},
	}
	svc := newTestService(t, store, client, cfg)

	_, err := svc.GetOrCreateTodayMessage(context.Background())
	if !errors.Is(err, motd.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}
	if client.embeds != 0 {
		t.Errorf("invalid candidates must not be embedded, got %d embeds", client.embeds)
	}
}

// raceStore simulates losing the cross-process insert race: the initial
// existence check sees nothing, the insert hits the uniqueness constraint,
// and the re-read finds the winner's record.
type raceStore struct {
	*fakeStore
	winner *database.MessageRecord
	gets   int
}

func (s *raceStore) GetByDate(ctx context.Context, date string) (*database.MessageRecord, error) {
	s.gets++
	if s.gets == 1 {
		return nil, nil
	}
	return s.winner, nil
}

func (s *raceStore) SaveMessage(_ context.Context, record *database.MessageRecord) error {
	return fmt.Errorf("date %s: %w", record.Date, database.ErrDuplicateDate)
}

func TestGetOrCreateDuplicateDateRaceReturnsWinner(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		completions: []completionStep{{text: uniqueText(1)}},
		embeddings:  [][]float32{{0, 1}},
	}
	store := &raceStore{
		fakeStore: newFakeStore(),
		winner:    &database.MessageRecord{Content: "winner content"},
	}
	svc := newTestService(t, store, client, testGeneratorConfig())
	store.winner.Date = svc.Today()

	content, err := svc.GetOrCreateTodayMessage(context.Background())
	if err != nil {
		t.Fatalf("GetOrCreateTodayMessage() error: %v", err)
	}
	if content != "winner content" {
		t.Errorf("expected winner's content after losing the race, got %q", content)
	}
}

func TestGetOrCreateCoalescesConcurrentCallers(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	client := &fakeClient{
		completions: []completionStep{{text: uniqueText(1)}},
		embeddings:  [][]float32{{0, 1}},
	}
	svc := newTestService(t, store, client, testGeneratorConfig())

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.GetOrCreateTodayMessage(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != uniqueText(1) {
			t.Errorf("caller %d got %q", i, results[i])
		}
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("expected exactly one persisted record, got %d", n)
	}
}

func TestNewServiceRejectsInvalidTimezone(t *testing.T) {
	t.Parallel()

	cfg := testGeneratorConfig()
	cfg.Timezone = "Not/AZone"
	prompt := motd.LoadPromptContext("", "", discardLogger())
	_, err := motd.NewService(discardLogger(), newFakeStore(), &fakeClient{}, prompt, cfg)
	if err == nil || !strings.Contains(err.Error(), "timezone") {
		t.Errorf("expected timezone error, got %v", err)
	}
}
