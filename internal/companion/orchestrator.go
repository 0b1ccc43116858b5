package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/composer"
	"github.com/kalambet/solace/internal/conversation"
	"github.com/kalambet/solace/internal/journal"
	"github.com/kalambet/solace/internal/llm"
	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

// Inference is the single-call completion boundary.
// Implemented by llm.Client.
type Inference interface {
	Complete(ctx context.Context, segments []llm.Segment, p Params) (string, error)
}

// Params aliases the inference tuning knobs.
type Params = llm.Params

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultChatRateLimit  = 30
	defaultJournalEntries = 3
	chatAction            = "chat"
)

// Reply is the outcome of a sendMessage turn: either a generated assistant
// message with quick-reply suggestions, or the fixed crisis escalation
// payload.
type Reply struct {
	Message          storage.Message
	SuggestedReplies []string
	Crisis           bool
	Resources        []string
}

// Orchestrator runs the message pipeline: security checks, context assembly,
// the inference call, and persistence of the exchange.
type Orchestrator struct {
	guard     *security.Guard
	conv      *conversation.Store
	journal   journal.Reader
	inference Inference
	composer  *composer.Composer
	clock     Clock
	logger    *slog.Logger

	chatRateLimit  int
	journalEntries int
	params         Params
}

// Options tune the Orchestrator; zero values select defaults.
type Options struct {
	ChatRateLimit  int
	JournalEntries int
	Params         Params
	Clock          Clock
	Logger         *slog.Logger
}

// New creates an Orchestrator.
func New(guard *security.Guard, conv *conversation.Store, jr journal.Reader, inf Inference, comp *composer.Composer, opts Options) *Orchestrator {
	if opts.ChatRateLimit <= 0 {
		opts.ChatRateLimit = defaultChatRateLimit
	}
	if opts.JournalEntries <= 0 {
		opts.JournalEntries = defaultJournalEntries
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		guard:          guard,
		conv:           conv,
		journal:        jr,
		inference:      inf,
		composer:       comp,
		clock:          opts.Clock,
		logger:         opts.Logger,
		chatRateLimit:  opts.ChatRateLimit,
		journalEntries: opts.JournalEntries,
		params:         opts.Params,
	}
}

// SendMessage runs one companion turn for the user. The user message is
// persisted before the inference call, so a cancelled or failed turn leaves
// an unanswered message rather than a torn exchange.
func (o *Orchestrator) SendMessage(ctx context.Context, userID, text string) (Reply, error) {
	if !o.guard.CheckRateLimit(ctx, userID, chatAction, o.chatRateLimit) {
		return Reply{}, security.ErrRateLimited
	}
	if !o.guard.ValidateSession(ctx, userID) {
		return Reply{}, security.ErrUnauthenticated
	}

	// Crisis detection runs on the original text: the filter's crisis
	// category would redact the very phrase that must trigger escalation.
	crisis := security.DetectCrisis(text)

	if res := security.FilterSensitiveContent(text); res.Filtered {
		o.logger.Info("sensitive content filtered", "user", userID, "category", res.Reason)
		text = res.CleanContent
	}

	settings, err := o.guard.GetPrivacySettings(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("loading privacy settings: %w", err)
	}

	userMsg := storage.Message{
		ID:           uuid.New().String(),
		UserID:       userID,
		Role:         storage.RoleUser,
		Content:      text,
		DetectedMood: detectMood(text),
		CreatedAt:    o.clock.Now(),
	}

	if crisis {
		if err := o.persist(ctx, userMsg, settings.EncryptConversations); err != nil {
			return Reply{}, err
		}
		resp := security.CrisisSupportResponse()
		o.logger.Warn("crisis language detected, escalating", "user", userID)
		return Reply{
			Message: storage.Message{
				ID:        uuid.New().String(),
				UserID:    userID,
				Role:      storage.RoleAssistant,
				Content:   resp.Message,
				CreatedAt: o.clock.Now(),
			},
			Crisis:    true,
			Resources: resp.Resources,
		}, nil
	}

	history, err := o.plaintextHistory(ctx, userID, o.composer.HistoryLimit)
	if err != nil {
		return Reply{}, err
	}

	var entries []journal.Entry
	if settings.AllowDataAnalysis {
		entries, err = o.journal.Recent(ctx, userID, o.journalEntries)
		if err != nil {
			// Journal context is auxiliary; the turn proceeds without it.
			o.logger.Warn("journal context unavailable", "user", userID, "error", err)
			entries = nil
		}
	}

	if err := o.persist(ctx, userMsg, settings.EncryptConversations); err != nil {
		return Reply{}, err
	}

	segments := o.composer.Compose(history, entries, text)
	answer, err := o.inference.Complete(ctx, segments, o.params)
	if err != nil {
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		o.logger.Error("inference call failed", "user", userID, "error", err)
		return Reply{}, fmt.Errorf("failed to process message: %w", security.ErrUpstreamUnavailable)
	}

	replies := suggestedReplies(answer)
	encoded, err := json.Marshal(replies)
	if err != nil {
		return Reply{}, fmt.Errorf("encoding suggested replies: %w", err)
	}
	assistantMsg := storage.Message{
		ID:               uuid.New().String(),
		UserID:           userID,
		Role:             storage.RoleAssistant,
		Content:          answer,
		SuggestedReplies: string(encoded),
		CreatedAt:        o.clock.Now(),
	}
	if err := o.persist(ctx, assistantMsg, settings.EncryptConversations); err != nil {
		return Reply{}, err
	}

	// The caller always receives plaintext, even when persisted encrypted.
	assistantMsg.Content = answer
	assistantMsg.Encrypted = false
	return Reply{Message: assistantMsg, SuggestedReplies: replies}, nil
}

// History returns the user's recent messages with encrypted content opened.
// Decryption failure aborts the read rather than returning ciphertext.
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]storage.Message, error) {
	if !o.guard.ValidateSession(ctx, userID) {
		return nil, security.ErrUnauthenticated
	}
	return o.plaintextHistory(ctx, userID, limit)
}

func (o *Orchestrator) plaintextHistory(ctx context.Context, userID string, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = o.composer.HistoryLimit
	}
	msgs, err := o.conv.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	for i := range msgs {
		if !msgs[i].Encrypted {
			continue
		}
		plain, err := o.guard.DecryptMessage(msgs[i].Content)
		if err != nil {
			return nil, fmt.Errorf("opening message %s: %w", msgs[i].ID, err)
		}
		msgs[i].Content = plain
		msgs[i].Encrypted = false
	}
	return msgs, nil
}

// persist writes a message through the conversation store, sealing the
// content first when the user's settings require it.
func (o *Orchestrator) persist(ctx context.Context, m storage.Message, encrypt bool) error {
	if encrypt {
		sealed, err := o.guard.EncryptMessage(m.Content)
		if err != nil {
			return fmt.Errorf("sealing message: %w", err)
		}
		m.Content = sealed
		m.Encrypted = true
	}
	if err := o.conv.Append(ctx, m); err != nil {
		return fmt.Errorf("persisting message: %w", err)
	}
	return nil
}
