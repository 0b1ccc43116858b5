package storage

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("counting schema_version: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 applied migration, got %d", count)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		m := Message{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "u1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i%2 == 1 {
			m.Role = RoleAssistant
		}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.GetRecentMessages(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Bounded by limit but still chronological: the 3 newest, oldest first.
	if msgs[0].ID != "m2" || msgs[2].ID != "m4" {
		t.Errorf("unexpected order: %s .. %s", msgs[0].ID, msgs[2].ID)
	}
	if msgs[0].SuggestedReplies != "[]" {
		t.Errorf("expected default suggested replies [], got %q", msgs[0].SuggestedReplies)
	}
}

func TestMessagesKeepAppendOrderWithinSameTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Random UUIDs do not sort in append order; give the IDs a reversed
	// lexical order to prove the tie-break does not lean on them.
	ids := []string{"zz", "mm", "aa", "kk"}
	for i, id := range ids {
		m := Message{
			ID:        id,
			UserID:    "u1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: at,
		}
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != len(ids) {
		t.Fatalf("expected %d messages, got %d", len(ids), len(msgs))
	}
	for i, m := range msgs {
		if m.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s (append order lost)", i, m.ID, ids[i])
		}
	}

	// Sub-second precision survives the round trip.
	precise := Message{ID: "ns", UserID: "u2", Role: RoleUser, Content: "x", CreatedAt: at.Add(1500 * time.Microsecond)}
	if err := s.AppendMessage(ctx, precise); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	got, err := s.GetRecentMessages(ctx, "u2", 1)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if !got[0].CreatedAt.Equal(precise.CreatedAt) {
		t.Errorf("timestamp = %v, want %v", got[0].CreatedAt, precise.CreatedAt)
	}
}

func TestGetRecentMessagesIsolatedPerUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, uid := range []string{"alice", "bob"} {
		err := s.AppendMessage(ctx, Message{ID: uid + "-1", UserID: uid, Role: RoleUser, Content: "hi", CreatedAt: now})
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.GetRecentMessages(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].UserID != "alice" {
		t.Errorf("expected only alice's message, got %+v", msgs)
	}
}

func TestIncrementRateWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := time.Hour

	for i := 1; i <= 3; i++ {
		count, reset, err := s.IncrementRateWindow(ctx, "u1", "chat_message", now, window)
		if err != nil {
			t.Fatalf("IncrementRateWindow: %v", err)
		}
		if count != i {
			t.Errorf("call %d: expected count %d, got %d", i, i, count)
		}
		if !reset.Equal(now.Add(window)) {
			t.Errorf("call %d: expected reset %v, got %v", i, now.Add(window), reset)
		}
	}

	// A different action gets its own counter.
	count, _, err := s.IncrementRateWindow(ctx, "u1", "export", now, window)
	if err != nil {
		t.Fatalf("IncrementRateWindow: %v", err)
	}
	if count != 1 {
		t.Errorf("expected independent counter for second action, got %d", count)
	}

	// After the window elapses the counter resets to 1.
	later := now.Add(window + time.Minute)
	count, reset, err := s.IncrementRateWindow(ctx, "u1", "chat_message", later, window)
	if err != nil {
		t.Fatalf("IncrementRateWindow after window: %v", err)
	}
	if count != 1 {
		t.Errorf("expected counter reset to 1, got %d", count)
	}
	if !reset.Equal(later.Add(window)) {
		t.Errorf("expected new reset %v, got %v", later.Add(window), reset)
	}
}

func TestSessionActivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetLastActivity(ctx, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown session, got %v", err)
	}

	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	if err := s.TouchSession(ctx, "u1", now); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	got, err := s.GetLastActivity(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLastActivity: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("expected %v, got %v", now, got)
	}

	// Touch again to verify upsert.
	later := now.Add(10 * time.Minute)
	if err := s.TouchSession(ctx, "u1", later); err != nil {
		t.Fatalf("TouchSession update: %v", err)
	}
	got, err = s.GetLastActivity(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLastActivity: %v", err)
	}
	if !got.Equal(later) {
		t.Errorf("expected %v, got %v", later, got)
	}
}

func TestPrivacySettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPrivacySettings(ctx, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	days := 90
	ps := PrivacySettings{
		UserID:               "u1",
		EncryptConversations: true,
		AllowDataAnalysis:    true,
		DeleteDataAfterDays:  &days,
		ExportDataAllowed:    true,
		UpdatedAt:            time.Now(),
	}
	if err := s.SavePrivacySettings(ctx, ps); err != nil {
		t.Fatalf("SavePrivacySettings: %v", err)
	}

	got, err := s.GetPrivacySettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPrivacySettings: %v", err)
	}
	if !got.EncryptConversations || !got.AllowDataAnalysis || got.ShareInsightsWithPartner {
		t.Errorf("unexpected flags: %+v", got)
	}
	if got.DeleteDataAfterDays == nil || *got.DeleteDataAfterDays != 90 {
		t.Errorf("expected DeleteDataAfterDays 90, got %v", got.DeleteDataAfterDays)
	}

	// Clearing the retention days persists as NULL.
	ps.DeleteDataAfterDays = nil
	if err := s.SavePrivacySettings(ctx, ps); err != nil {
		t.Fatalf("SavePrivacySettings update: %v", err)
	}
	got, err = s.GetPrivacySettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPrivacySettings: %v", err)
	}
	if got.DeleteDataAfterDays != nil {
		t.Errorf("expected nil DeleteDataAfterDays, got %v", *got.DeleteDataAfterDays)
	}
}

func TestReplaceInsightsSupersedes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := []Insight{
		{ID: "i1", UserID: "u1", Type: InsightMoodPattern, Title: "t", Content: "c", Priority: PriorityMedium, CreatedAt: now},
	}
	if err := s.ReplaceInsights(ctx, "u1", first); err != nil {
		t.Fatalf("ReplaceInsights: %v", err)
	}

	second := []Insight{
		{ID: "i2", UserID: "u1", Type: InsightSelfCare, Title: "t2", Content: "c2", Priority: PriorityHigh, CreatedAt: now},
		{ID: "i3", UserID: "u1", Type: InsightCelebration, Title: "t3", Content: "c3", Priority: PriorityLow, CreatedAt: now},
	}
	if err := s.ReplaceInsights(ctx, "u1", second); err != nil {
		t.Fatalf("ReplaceInsights second batch: %v", err)
	}

	current, err := s.ListInsights(ctx, "u1")
	if err != nil {
		t.Fatalf("ListInsights: %v", err)
	}
	if len(current) != 2 {
		t.Fatalf("expected 2 current insights, got %d", len(current))
	}
	// High priority sorts first.
	if current[0].ID != "i2" {
		t.Errorf("expected high-priority insight first, got %s", current[0].ID)
	}

	// Superseded insight is still fetchable by ID (immutable history).
	if _, err := s.GetInsight(ctx, "u1", "i1"); err != nil {
		t.Errorf("superseded insight should remain readable: %v", err)
	}
}

func TestJournalEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

	if _, err := s.LatestJournalEntryTime(ctx, "u1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 0; i < 3; i++ {
		e := JournalEntry{
			ID:        fmt.Sprintf("j%d", i),
			UserID:    "u1",
			Mood:      "calm",
			Content:   "entry",
			CreatedAt: base.AddDate(0, 0, i),
		}
		if err := s.SaveJournalEntry(ctx, e); err != nil {
			t.Fatalf("SaveJournalEntry: %v", err)
		}
	}

	entries, err := s.GetRecentJournalEntries(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("GetRecentJournalEntries: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "j2" {
		t.Errorf("expected newest first, got %+v", entries)
	}

	latest, err := s.LatestJournalEntryTime(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestJournalEntryTime: %v", err)
	}
	if !latest.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("expected %v, got %v", base.AddDate(0, 0, 2), latest)
	}
}

func TestRetentionDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	old := Message{ID: "old", UserID: "u1", Role: RoleUser, Content: "x", CreatedAt: now.AddDate(0, 0, -40)}
	fresh := Message{ID: "fresh", UserID: "u1", Role: RoleUser, Content: "y", CreatedAt: now.AddDate(0, 0, -1)}
	for _, m := range []Message{old, fresh} {
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	n, err := s.DeleteMessagesBefore(ctx, "u1", now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("DeleteMessagesBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	msgs, err := s.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "fresh" {
		t.Errorf("expected only fresh message, got %+v", msgs)
	}
}

func TestDeleteUserData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.AppendMessage(ctx, Message{ID: "m1", UserID: "u1", Role: RoleUser, Content: "x", CreatedAt: now}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.SaveJournalEntry(ctx, JournalEntry{ID: "j1", UserID: "u1", Content: "x", CreatedAt: now}); err != nil {
		t.Fatalf("SaveJournalEntry: %v", err)
	}
	if err := s.SavePrivacySettings(ctx, PrivacySettings{UserID: "u1", UpdatedAt: now}); err != nil {
		t.Fatalf("SavePrivacySettings: %v", err)
	}
	if err := s.AppendAudit(ctx, AuditRecord{ID: "a1", UserID: "u1", Action: "export", CreatedAt: now}); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	report, err := s.DeleteUserData(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteUserData: %v", err)
	}
	if !report.Complete() {
		t.Fatalf("expected complete deletion, failed: %v", report.Failed)
	}

	msgs, err := s.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after deletion, got %d", len(msgs))
	}
	if _, err := s.GetPrivacySettings(ctx, "u1"); err != ErrNotFound {
		t.Errorf("expected privacy settings removed, got %v", err)
	}

	// Audit log survives erasure so the deletion itself stays auditable.
	audits, err := s.ListAudit(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(audits) != 1 {
		t.Errorf("expected audit log to survive, got %d records", len(audits))
	}
}
