package composer

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/storage"
)

func historyMsg(role storage.Role, content string) storage.Message {
	return storage.Message{Role: role, Content: content}
}

func TestComposeOrdering(t *testing.T) {
	c := New("You are a warm companion.", 20, 0)

	entries := []journal.Entry{
		{Mood: "calm", Content: "slept well", CreatedAt: time.Date(2025, 6, 14, 21, 0, 0, 0, time.UTC)},
	}
	history := []storage.Message{
		historyMsg(storage.RoleUser, "hi"),
		historyMsg(storage.RoleAssistant, "hello, how are you?"),
	}

	segments := c.Compose(history, entries, "feeling better today")

	if len(segments) != 5 {
		t.Fatalf("got %d segments, want 5", len(segments))
	}
	if segments[0].Role != "system" || segments[0].Content != "You are a warm companion." {
		t.Errorf("segment 0 = %+v", segments[0])
	}
	if segments[1].Role != "system" || !strings.Contains(segments[1].Content, "slept well") {
		t.Errorf("segment 1 should be the journal note: %+v", segments[1])
	}
	if segments[2].Role != "user" || segments[2].Content != "hi" {
		t.Errorf("segment 2 = %+v", segments[2])
	}
	if segments[3].Role != "assistant" {
		t.Errorf("segment 3 = %+v", segments[3])
	}
	last := segments[len(segments)-1]
	if last.Role != "user" || last.Content != "feeling better today" {
		t.Errorf("last segment = %+v", last)
	}
}

func TestComposeWithoutJournalContext(t *testing.T) {
	c := New("persona", 20, 0)
	segments := c.Compose(nil, nil, "hello")

	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Role != "system" || segments[1].Role != "user" {
		t.Errorf("unexpected segments: %+v", segments)
	}
}

func TestComposeHistoryBounded(t *testing.T) {
	c := New("persona", 3, 0)

	var history []storage.Message
	for i := 0; i < 10; i++ {
		history = append(history, historyMsg(storage.RoleUser, "m"+string(rune('0'+i))))
	}

	segments := c.Compose(history, nil, "new")
	// persona + 3 history + new message
	if len(segments) != 5 {
		t.Fatalf("got %d segments, want 5", len(segments))
	}
	if segments[1].Content != "m7" {
		t.Errorf("oldest kept = %q, want m7", segments[1].Content)
	}
}

func TestComposeTokenBudgetDropsOldest(t *testing.T) {
	// Budget fits persona, the new message, and roughly one big history entry.
	big := strings.Repeat("x", 400) // ~100 tokens
	c := New("p", 20, 160)

	history := []storage.Message{
		historyMsg(storage.RoleUser, big),
		historyMsg(storage.RoleAssistant, big),
	}
	segments := c.Compose(history, nil, "short")

	// persona + 1 surviving history message + new message
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(segments), segments)
	}
	if segments[1].Role != "assistant" {
		t.Errorf("survivor should be the newest history message, got %+v", segments[1])
	}
}

func TestJournalNoteCapsAndTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	var entries []journal.Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, journal.Entry{
			Mood:      "tired",
			Content:   long,
			CreatedAt: time.Date(2025, 6, 10+i, 8, 0, 0, 0, time.UTC),
		})
	}

	note := journalNote(entries)
	if got := strings.Count(note, "- ["); got != journalContextEntryCap {
		t.Errorf("entries in note = %d, want %d", got, journalContextEntryCap)
	}
	if strings.Contains(note, long) {
		t.Error("long entry content was not truncated")
	}
}

func TestTruncateRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 150) // 2 bytes each
	out := truncate(s, journalSnippetMaxChars)
	if !strings.HasSuffix(out, "…") {
		t.Errorf("expected ellipsis suffix, got %q", out[len(out)-8:])
	}
	for _, r := range out {
		if r == '�' {
			t.Fatal("truncation split a multi-byte character")
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
