package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/storage"
)

// Store defines the storage operations the sweeper needs.
// Implemented by storage.Store.
type Store interface {
	ListAutoDeletePolicies(ctx context.Context) ([]storage.RetentionPolicy, error)
	DeleteMessagesBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	DeleteJournalEntriesBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error)
	AppendAudit(ctx context.Context, a storage.AuditRecord) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const defaultSweepInterval = time.Hour

// Sweeper periodically applies per-user retention policies, deleting records
// older than each enabled window.
type Sweeper struct {
	store    Store
	clock    Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. If interval <= 0, it defaults to 1 hour.
func NewSweeper(store Store, interval time.Duration, clock Clock, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, clock: clock, interval: interval, logger: logger}
}

// Run sweeps on the interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("retention sweep failed", "error", err)
		}
	}
}

// RunOnce applies every auto-delete policy. A failure for one user does not
// block the rest.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	policies, err := s.store.ListAutoDeletePolicies(ctx)
	if err != nil {
		return fmt.Errorf("listing retention policies: %w", err)
	}

	for _, policy := range policies {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.applyPolicy(ctx, policy); err != nil {
			s.logger.Error("applying retention policy failed", "user", policy.UserID, "error", err)
		}
	}
	return nil
}

func (s *Sweeper) applyPolicy(ctx context.Context, policy storage.RetentionPolicy) error {
	now := s.clock.Now()
	total := int64(0)

	categories := []struct {
		name   string
		days   int
		delete func(context.Context, string, time.Time) (int64, error)
	}{
		{"conversations", policy.ConversationDays, s.store.DeleteMessagesBefore},
		{"journal", policy.JournalDays, s.store.DeleteJournalEntriesBefore},
		{"insights", policy.InsightDays, s.store.DeleteInsightsBefore},
	}
	for _, cat := range categories {
		if cat.days <= 0 {
			// -1 means keep forever.
			continue
		}
		cutoff := now.AddDate(0, 0, -cat.days)
		n, err := cat.delete(ctx, policy.UserID, cutoff)
		if err != nil {
			return fmt.Errorf("deleting %s: %w", cat.name, err)
		}
		total += n
	}

	if total > 0 {
		s.logger.Info("retention sweep removed records", "user", policy.UserID, "count", total)
		rec := storage.AuditRecord{
			ID:        uuid.New().String(),
			UserID:    policy.UserID,
			Action:    "retention_sweep",
			Detail:    fmt.Sprintf("%d records removed", total),
			CreatedAt: now,
		}
		if err := s.store.AppendAudit(ctx, rec); err != nil {
			s.logger.Error("audit write failed", "user", policy.UserID, "error", err)
		}
	}
	return nil
}
