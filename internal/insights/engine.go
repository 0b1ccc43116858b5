package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/storage"
)

// Journal is the read-only journal boundary the engine analyzes.
// Implemented by journal.Service.
type Journal interface {
	Recent(ctx context.Context, userID string, limit int) ([]journal.Entry, error)
	LatestEntryTime(ctx context.Context, userID string) (time.Time, error)
}

// Store defines the storage operations the engine needs.
// Implemented by storage.Store.
type Store interface {
	ReplaceInsights(ctx context.Context, userID string, insights []storage.Insight) error
	ListInsights(ctx context.Context, userID string) ([]storage.Insight, error)
	GetInsight(ctx context.Context, userID, id string) (storage.Insight, error)
	SaveInsightEvent(ctx context.Context, ev storage.InsightEvent) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const defaultCacheTTL = 6 * time.Hour

// Engine derives prioritized insights from a user's journal history.
// Results are cached per user and recomputed when the cache ages out or a
// newer journal entry appears.
type Engine struct {
	journal Journal
	store   Store
	clock   Clock
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]cachedResult
}

type cachedResult struct {
	insights   []storage.Insight
	computedAt time.Time
}

// Options tune the Engine; zero values select defaults.
type Options struct {
	CacheTTL time.Duration
	Clock    Clock
	Logger   *slog.Logger
}

// NewEngine creates an Engine with a 6-hour result cache.
func NewEngine(jr Journal, store Store, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		journal: jr,
		store:   store,
		clock:   opts.Clock,
		ttl:     opts.CacheTTL,
		logger:  opts.Logger,
		cache:   make(map[string]cachedResult),
	}
}

// GetPersonalizedInsights returns the user's current insights, recomputing
// when the cache is stale. Failures never propagate: the engine degrades to
// a single static welcome insight.
func (e *Engine) GetPersonalizedInsights(ctx context.Context, userID string) []storage.Insight {
	if cached, ok := e.freshCached(ctx, userID); ok {
		return cached
	}

	now := e.clock.Now()
	insights := e.compute(ctx, userID, now)

	if err := e.store.ReplaceInsights(ctx, userID, insights); err != nil {
		// Persistence is best effort; the computed batch is still served.
		e.logger.Warn("failed to persist insights", "user", userID, "error", err)
	}

	e.mu.Lock()
	e.cache[userID] = cachedResult{insights: insights, computedAt: now}
	e.mu.Unlock()
	return copyInsights(insights)
}

// freshCached returns the cached batch when it is within TTL and no journal
// entry has been written since it was computed.
func (e *Engine) freshCached(ctx context.Context, userID string) ([]storage.Insight, bool) {
	e.mu.RLock()
	entry, ok := e.cache[userID]
	e.mu.RUnlock()
	if !ok || !e.clock.Now().Before(entry.computedAt.Add(e.ttl)) {
		return nil, false
	}

	latest, err := e.journal.LatestEntryTime(ctx, userID)
	if err == nil && latest.After(entry.computedAt) {
		return nil, false
	}
	return copyInsights(entry.insights), true
}

// MoodTrendFor analyzes the user's recent mood trajectory on demand. ok is
// false when the journal is too thin to compare halves of the sample.
func (e *Engine) MoodTrendFor(ctx context.Context, userID string) (MoodTrend, bool, error) {
	entries, err := e.journal.Recent(ctx, userID, moodSampleSize)
	if err != nil {
		return MoodTrend{}, false, fmt.Errorf("reading journal: %w", err)
	}
	mt, ok := analyzeMoodTrend(entries)
	return mt, ok, nil
}

// compute runs every analysis and assembles at most one insight per type.
func (e *Engine) compute(ctx context.Context, userID string, now time.Time) []storage.Insight {
	entries, err := e.journal.Recent(ctx, userID, moodSampleSize)
	if err != nil {
		e.logger.Warn("journal unavailable, serving welcome insight", "user", userID, "error", err)
		return []storage.Insight{welcomeInsight(userID, now)}
	}
	if len(entries) == 0 {
		return []storage.Insight{welcomeInsight(userID, now)}
	}

	var out []storage.Insight

	trend, trendOK := analyzeMoodTrend(entries)
	if trendOK {
		out = append(out, moodTrendInsight(userID, trend, entries, now))
	}

	if patterns := analyzeRelationships(entries); len(patterns) > 0 {
		out = append(out, relationshipInsight(userID, patterns[0], now))
	}

	if needsSelfCare(entries) {
		out = append(out, selfCareInsight(userID, now))
	}

	streak := calculateStreak(entries)
	improving := trendOK && trend.Trend == TrendImproving
	if c, ok := celebrationInsight(userID, streak, improving, now); ok {
		out = append(out, c)
	}

	if len(out) == 0 {
		return []storage.Insight{welcomeInsight(userID, now)}
	}
	return out
}

// MarkInsightRead records a read event against an insight. The insight row
// is never mutated.
func (e *Engine) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	if _, err := e.store.GetInsight(ctx, userID, insightID); err != nil {
		return fmt.Errorf("looking up insight: %w", err)
	}
	ev := storage.InsightEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		InsightID: insightID,
		Event:     "read",
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.SaveInsightEvent(ctx, ev); err != nil {
		return fmt.Errorf("recording read event: %w", err)
	}
	return nil
}

// --- Insight assembly ---

func welcomeInsight(userID string, now time.Time) storage.Insight {
	return storage.Insight{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   storage.InsightSelfCare,
		Title:  "Welcome to your insights",
		Content: "Once you've journaled for a few days, patterns in your mood and " +
			"habits will start to show up here. There's no wrong way to begin.",
		ActionItems: mustJSON([]string{"Write your first journal entry today"}),
		Priority:    storage.PriorityMedium,
		CreatedAt:   now,
	}
}

func moodTrendInsight(userID string, mt MoodTrend, entries []journal.Entry, now time.Time) storage.Insight {
	priority := storage.PriorityMedium
	if mt.Trend == TrendDeclining {
		priority = storage.PriorityHigh
	}

	actions := []string{"Keep your journaling rhythm going"}
	if mt.Trend == TrendDeclining {
		actions = []string{
			"Plan one small restorative activity this week",
			"Consider talking through what's been weighing on you",
		}
	}

	related := make([]string, 0, len(entries))
	for _, entry := range entries {
		related = append(related, entry.ID)
	}

	return storage.Insight{
		ID:             uuid.New().String(),
		UserID:         userID,
		Type:           storage.InsightMoodPattern,
		Title:          fmt.Sprintf("Your mood looks %s", mt.Trend),
		Content:        moodTrendContent(mt),
		ActionItems:    mustJSON(actions),
		Priority:       priority,
		RelatedEntries: mustJSON(related),
		CreatedAt:      now,
	}
}

func relationshipInsight(userID string, p PatternCount, now time.Time) storage.Insight {
	return storage.Insight{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        storage.InsightRelationshipAdvice,
		Title:       fmt.Sprintf("A pattern around %s", p.Category),
		Content:     p.Advice,
		ActionItems: mustJSON(p.Exercises),
		Priority:    storage.PriorityMedium,
		CreatedAt:   now,
	}
}

func selfCareInsight(userID string, now time.Time) storage.Insight {
	return storage.Insight{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   storage.InsightSelfCare,
		Title:  "Time to look after yourself",
		Content: "Your recent entries show a sustained run of stress or heavy moods. " +
			"That's a signal worth acting on, not pushing through.",
		ActionItems: mustJSON([]string{
			"Block out 30 minutes today for something that restores you",
			"Say no to one non-essential commitment this week",
		}),
		Priority:  storage.PriorityHigh,
		CreatedAt: now,
	}
}

// celebrationInsight fires when at least one achievement condition holds:
// a journaling streak of 7+, an improving mood trend, or completed goals
// (goal tracking is not wired up yet, so that count is always zero).
func celebrationInsight(userID string, streak int, improving bool, now time.Time) (storage.Insight, bool) {
	completedGoals := 0

	var wins []string
	if streak >= 7 {
		wins = append(wins, fmt.Sprintf("a %d-day journaling streak", streak))
	}
	if improving {
		wins = append(wins, "an upward mood trend")
	}
	if completedGoals > 0 {
		wins = append(wins, fmt.Sprintf("%d completed goals", completedGoals))
	}
	if len(wins) == 0 {
		return storage.Insight{}, false
	}

	content := "Worth celebrating: " + wins[0]
	for _, w := range wins[1:] {
		content += ", and " + w
	}
	content += ". Take a moment to notice the progress."

	return storage.Insight{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        storage.InsightCelebration,
		Title:       "You've earned a pat on the back",
		Content:     content,
		ActionItems: mustJSON([]string{"Mark the win however feels right to you"}),
		Priority:    storage.PriorityLow,
		CreatedAt:   now,
	}, true
}

func mustJSON(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func copyInsights(in []storage.Insight) []storage.Insight {
	out := make([]storage.Insight, len(in))
	copy(out, in)
	return out
}
