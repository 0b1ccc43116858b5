package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/storage"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testSweeper(t *testing.T) (*Sweeper, *storage.Store, time.Time) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSweeper(store, 0, fixedClock{now: now}, logger), store, now
}

func seedMessage(t *testing.T, store *storage.Store, userID string, at time.Time) {
	t.Helper()
	err := store.AppendMessage(context.Background(), storage.Message{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      storage.RoleUser,
		Content:   "m",
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("seeding message: %v", err)
	}
}

func savePolicy(t *testing.T, store *storage.Store, rp storage.RetentionPolicy) {
	t.Helper()
	if err := store.SaveRetentionPolicy(context.Background(), rp); err != nil {
		t.Fatalf("saving policy: %v", err)
	}
}

func TestSweepDeletesExpiredRecords(t *testing.T) {
	s, store, now := testSweeper(t)
	ctx := context.Background()

	seedMessage(t, store, "u1", now.AddDate(0, 0, -40))
	seedMessage(t, store, "u1", now.AddDate(0, 0, -5))
	savePolicy(t, store, storage.RetentionPolicy{
		UserID:            "u1",
		ConversationDays:  30,
		JournalDays:       -1,
		InsightDays:       -1,
		AutoDeleteEnabled: true,
		UpdatedAt:         now,
	})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	msgs, err := store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 survivor", len(msgs))
	}

	// The sweep is audited.
	records, err := store.ListAudit(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	found := false
	for _, r := range records {
		if r.Action == "retention_sweep" {
			found = true
		}
	}
	if !found {
		t.Error("expected retention_sweep audit record")
	}
}

func TestSweepSkipsDisabledPolicies(t *testing.T) {
	s, store, now := testSweeper(t)
	ctx := context.Background()

	seedMessage(t, store, "u1", now.AddDate(0, 0, -40))
	savePolicy(t, store, storage.RetentionPolicy{
		UserID:           "u1",
		ConversationDays: 30,
		JournalDays:      -1,
		InsightDays:      -1,
		UpdatedAt:        now,
	})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	msgs, err := store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("auto-delete disabled but %d messages remain, want 1", len(msgs))
	}
}

func TestSweepUnboundedWindowKeepsEverything(t *testing.T) {
	s, store, now := testSweeper(t)
	ctx := context.Background()

	seedMessage(t, store, "u1", now.AddDate(-1, 0, 0))
	savePolicy(t, store, storage.RetentionPolicy{
		UserID:            "u1",
		ConversationDays:  -1,
		JournalDays:       -1,
		InsightDays:       -1,
		AutoDeleteEnabled: true,
		UpdatedAt:         now,
	})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	msgs, err := store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("unbounded window deleted records: %d remain", len(msgs))
	}
}

func TestSweepNoAuditWhenNothingRemoved(t *testing.T) {
	s, store, now := testSweeper(t)
	ctx := context.Background()

	savePolicy(t, store, storage.RetentionPolicy{
		UserID:            "u1",
		ConversationDays:  30,
		JournalDays:       30,
		InsightDays:       30,
		AutoDeleteEnabled: true,
		UpdatedAt:         now,
	})

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	records, err := store.ListAudit(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no audit records for an empty sweep, got %+v", records)
	}
}
