package companion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/solace/internal/composer"
	"github.com/kalambet/solace/internal/conversation"
	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/llm"
	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type mockInference struct {
	mu       sync.Mutex
	calls    int
	prompts  [][]llm.Segment
	response string
	err      error
}

func (m *mockInference) Complete(ctx context.Context, segments []llm.Segment, p Params) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, segments)
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockInference) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockInference) lastPrompt() []llm.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return nil
	}
	return m.prompts[len(m.prompts)-1]
}

type fixture struct {
	orch  *Orchestrator
	guard *security.Guard
	store *storage.Store
	inf   *mockInference
	clock *mockClock
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &mockClock{now: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cipher, err := security.NewCipher(bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}
	sessions := security.NewSessionManager([]byte("test-key"), 0, clock)
	guard := security.NewGuard(store, cipher, sessions, security.Options{Clock: clock, Logger: logger})

	conv := conversation.NewStoreWithClock(store, clock, 5*time.Minute)
	jr := journal.NewServiceWithClock(store, clock)
	inf := &mockInference{response: "I'm here with you."}
	comp := composer.New(Persona, 20, 0)

	opts.Clock = clock
	opts.Logger = logger
	orch := New(guard, conv, jr, inf, comp, opts)

	if _, err := guard.StartSession(context.Background(), "u1"); err != nil {
		t.Fatalf("starting session: %v", err)
	}
	return &fixture{orch: orch, guard: guard, store: store, inf: inf, clock: clock}
}

func TestSendMessageHappyPath(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	reply, err := f.orch.SendMessage(ctx, "u1", "I had a stressful day")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Crisis {
		t.Error("unexpected crisis flag")
	}
	if reply.Message.Content != "I'm here with you." {
		t.Errorf("reply content = %q", reply.Message.Content)
	}
	if reply.Message.Role != storage.RoleAssistant {
		t.Errorf("reply role = %q", reply.Message.Role)
	}
	if len(reply.SuggestedReplies) == 0 {
		t.Error("expected suggested replies")
	}

	msgs, err := f.store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != storage.RoleUser || msgs[1].Role != storage.RoleAssistant {
		t.Errorf("unexpected roles: %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].DetectedMood != "stressed" {
		t.Errorf("detected mood = %q, want stressed", msgs[0].DetectedMood)
	}
}

func TestSendMessageSuggestedRepliesHeuristic(t *testing.T) {
	f := newFixture(t, Options{})
	f.inf.response = "What do you think brought that on?"

	reply, err := f.orch.SendMessage(context.Background(), "u1", "rough morning")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	found := false
	for _, r := range reply.SuggestedReplies {
		if r == "Let me think about that" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected reflective continuations for a question, got %v", reply.SuggestedReplies)
	}
}

func TestSendMessageCrisisShortCircuit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	reply, err := f.orch.SendMessage(ctx, "u1", "I want to kill myself")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if !reply.Crisis {
		t.Fatal("expected crisis escalation")
	}
	if len(reply.Resources) == 0 {
		t.Error("expected hotline resources")
	}
	if f.inf.callCount() != 0 {
		t.Errorf("inference called %d times during crisis, want 0", f.inf.callCount())
	}

	// The user message is still persisted.
	msgs, err := f.store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != storage.RoleUser {
		t.Errorf("persisted messages = %+v, want just the user message", msgs)
	}
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t, Options{ChatRateLimit: 1})
	ctx := context.Background()

	if _, err := f.orch.SendMessage(ctx, "u1", "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := f.orch.SendMessage(ctx, "u1", "second")
	if !errors.Is(err, security.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestSendMessageRequiresSession(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.orch.SendMessage(context.Background(), "no-session", "hello")
	if !errors.Is(err, security.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSendMessageFiltersSensitiveContent(t *testing.T) {
	f := newFixture(t, Options{})

	if _, err := f.orch.SendMessage(context.Background(), "u1", "my email is a@b.co and I feel low"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	prompt := f.inf.lastPrompt()
	last := prompt[len(prompt)-1]
	if strings.Contains(last.Content, "a@b.co") {
		t.Errorf("raw email reached the inference prompt: %q", last.Content)
	}
	if !strings.Contains(last.Content, security.RedactedPlaceholder) {
		t.Errorf("expected placeholder in prompt, got %q", last.Content)
	}
}

func TestSendMessageEncryptedPersistence(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	enc := true
	if _, err := f.guard.UpdatePrivacySettings(ctx, "u1", security.PrivacyUpdate{EncryptConversations: &enc}); err != nil {
		t.Fatalf("enabling encryption: %v", err)
	}

	reply, err := f.orch.SendMessage(ctx, "u1", "something private")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// Caller still sees plaintext.
	if reply.Message.Content != "I'm here with you." || reply.Message.Encrypted {
		t.Errorf("reply should be plaintext: %+v", reply.Message)
	}

	// At rest, both messages are sealed.
	msgs, err := f.store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	for _, m := range msgs {
		if !m.Encrypted {
			t.Errorf("message %s stored unencrypted", m.ID)
		}
		if m.Content == "something private" || m.Content == "I'm here with you." {
			t.Errorf("plaintext at rest: %q", m.Content)
		}
	}

	// History round-trips back to plaintext.
	history, err := f.orch.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Content != "something private" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestSendMessageInferenceFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.inf.err = errors.New("connection refused")
	ctx := context.Background()

	_, err := f.orch.SendMessage(ctx, "u1", "hello")
	if !errors.Is(err, security.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed to process message") {
		t.Errorf("expected generic failure message, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "connection refused") {
		t.Errorf("internal detail leaked: %q", err.Error())
	}

	// The user message survives as a legitimate unanswered state.
	msgs, err := f.store.GetRecentMessages(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != storage.RoleUser {
		t.Errorf("expected the lone user message, got %+v", msgs)
	}
}

func TestSendMessageJournalContextInjected(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	jr := journal.NewServiceWithClock(f.store, f.clock)
	if _, err := jr.Add(ctx, "u1", "tired", "barely slept last night", nil); err != nil {
		t.Fatalf("seeding journal: %v", err)
	}

	if _, err := f.orch.SendMessage(ctx, "u1", "good morning"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	prompt := f.inf.lastPrompt()
	found := false
	for _, s := range prompt {
		if s.Role == "system" && strings.Contains(s.Content, "barely slept last night") {
			found = true
		}
	}
	if !found {
		t.Error("journal context missing from prompt")
	}
}

func TestSendMessageJournalContextSkippedWithoutConsent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	jr := journal.NewServiceWithClock(f.store, f.clock)
	if _, err := jr.Add(ctx, "u1", "tired", "a private reflection", nil); err != nil {
		t.Fatalf("seeding journal: %v", err)
	}
	off := false
	if _, err := f.guard.UpdatePrivacySettings(ctx, "u1", security.PrivacyUpdate{AllowDataAnalysis: &off}); err != nil {
		t.Fatalf("disabling analysis: %v", err)
	}

	if _, err := f.orch.SendMessage(ctx, "u1", "good morning"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	for _, s := range f.inf.lastPrompt() {
		if strings.Contains(s.Content, "a private reflection") {
			t.Error("journal content injected despite allowDataAnalysis=false")
		}
	}
}

func TestDetectMood(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"work has me so stressed", "stressed"},
		{"I'm anxious about tomorrow", "anxious"},
		{"feeling really happy today", "happy"},
		{"nothing in particular", ""},
	}
	for _, tt := range tests {
		if got := detectMood(tt.text); got != tt.want {
			t.Errorf("detectMood(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
