package insights

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/kalambet/solace/internal/notify"
	"github.com/kalambet/solace/internal/storage"
)

type staticUsers []string

func (u staticUsers) ListJournalUsers(ctx context.Context) ([]string, error) {
	return u, nil
}

type captureSender struct {
	sent []notify.Notification
}

func (s *captureSender) Send(ctx context.Context, batch []notify.Notification) error {
	s.sent = append(s.sent, batch...)
	return nil
}

func TestRefresherAnnouncesHighPriorityOnce(t *testing.T) {
	// Sustained stress produces a high-priority self-care insight.
	entries := entriesNewestFirst([]string{"stressed", "anxious", "overwhelmed", "calm", "calm", "calm", "calm"})
	jr := &mockJournal{entries: entries}
	engine, _, _ := testEngine(t, jr)

	sender := &captureSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRefresher(engine, staticUsers{"u1"}, notify.NewDispatcher(sender, logger), 0, logger)
	ctx := context.Background()

	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sender.sent))
	}
	n := sender.sent[0]
	if n.Recipient != "u1" {
		t.Errorf("recipient = %q", n.Recipient)
	}
	if n.Data["type"] != string(storage.InsightSelfCare) {
		t.Errorf("type = %q, want self_care", n.Data["type"])
	}

	// A second cycle with the same insight standing does not re-announce.
	if err := r.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d notifications after second cycle, want 1", len(sender.sent))
	}
}

func TestRefresherIgnoresLowerPriorities(t *testing.T) {
	// A plain streak produces only a low-priority celebration.
	entries := entriesNewestFirst([]string{"calm", "calm", "calm", "calm", "calm", "calm", "calm"})
	engine, _, _ := testEngine(t, &mockJournal{entries: entries})

	sender := &captureSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRefresher(engine, staticUsers{"u1"}, notify.NewDispatcher(sender, logger), 0, logger)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d notifications, want 0", len(sender.sent))
	}
}
