package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/storage"
)

// Store defines the storage operations the Guard needs.
// Implemented by storage.Store.
type Store interface {
	IncrementRateWindow(ctx context.Context, userID, action string, now time.Time, window time.Duration) (int, time.Time, error)
	GetLastActivity(ctx context.Context, userID string) (time.Time, error)
	TouchSession(ctx context.Context, userID string, now time.Time) error
	GetPrivacySettings(ctx context.Context, userID string) (storage.PrivacySettings, error)
	SavePrivacySettings(ctx context.Context, ps storage.PrivacySettings) error
	GetRetentionPolicy(ctx context.Context, userID string) (storage.RetentionPolicy, error)
	SaveRetentionPolicy(ctx context.Context, rp storage.RetentionPolicy) error
	AppendAudit(ctx context.Context, a storage.AuditRecord) error
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]storage.Message, error)
	GetRecentJournalEntries(ctx context.Context, userID string, limit int) ([]storage.JournalEntry, error)
	ListInsights(ctx context.Context, userID string) ([]storage.Insight, error)
	DeleteUserData(ctx context.Context, userID string) (storage.DeleteReport, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultIdleTimeout = 30 * time.Minute
	defaultRateWindow  = time.Hour
	settingsCacheTTL   = 60 * time.Second
)

// Guard is the privacy and security layer. Every message, export, and
// settings change passes through it; no other component touches encryption,
// rate limiting, or the audit log directly.
type Guard struct {
	store       Store
	cipher      *Cipher
	sessions    *SessionManager
	clock       Clock
	idleTimeout time.Duration
	rateWindow  time.Duration
	logger      *slog.Logger

	mu            sync.RWMutex
	settingsCache map[string]cachedSettings
}

type cachedSettings struct {
	settings storage.PrivacySettings
	cachedAt time.Time
}

// Options tune Guard behavior; zero values select defaults.
type Options struct {
	IdleTimeout time.Duration
	RateWindow  time.Duration
	Clock       Clock
	Logger      *slog.Logger
}

// NewGuard creates a Guard around the given store, message cipher, and
// session manager.
func NewGuard(store Store, cipher *Cipher, sessions *SessionManager, opts Options) *Guard {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = defaultRateWindow
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Guard{
		store:         store,
		cipher:        cipher,
		sessions:      sessions,
		clock:         opts.Clock,
		idleTimeout:   opts.IdleTimeout,
		rateWindow:    opts.RateWindow,
		logger:        opts.Logger,
		settingsCache: make(map[string]cachedSettings),
	}
}

// StartSession issues a session token for userID and stamps the activity
// marker that idle-timeout checks run against.
func (g *Guard) StartSession(ctx context.Context, userID string) (string, error) {
	token, err := g.sessions.Issue(userID)
	if err != nil {
		return "", err
	}
	if err := g.store.TouchSession(ctx, userID, g.clock.Now()); err != nil {
		return "", err
	}
	g.audit(ctx, userID, "session_started", "")
	return token, nil
}

// RefreshActivity stamps the activity marker without issuing a token, for
// callers authenticated out of band (the local stdio transport has no
// session handshake).
func (g *Guard) RefreshActivity(ctx context.Context, userID string) error {
	return g.store.TouchSession(ctx, userID, g.clock.Now())
}

// VerifyToken validates a session token and returns the user it belongs to.
func (g *Guard) VerifyToken(token string) (string, error) {
	return g.sessions.Verify(token)
}

// ValidateSession fails closed: it returns false when no session activity is
// recorded for userID, when the store cannot be reached, or when the idle
// timeout has elapsed. On success it restamps the activity marker.
func (g *Guard) ValidateSession(ctx context.Context, userID string) bool {
	last, err := g.store.GetLastActivity(ctx, userID)
	if err != nil {
		if err != storage.ErrNotFound {
			g.logger.Warn("session lookup failed, denying", "user", userID, "error", err)
		}
		return false
	}

	now := g.clock.Now()
	if now.Sub(last) > g.idleTimeout {
		g.audit(ctx, userID, "session_timeout", "idle timeout exceeded")
		return false
	}

	if err := g.store.TouchSession(ctx, userID, now); err != nil {
		g.logger.Warn("failed to restamp session activity", "user", userID, "error", err)
	}
	return true
}

// CheckRateLimit enforces a fixed-window counter for (userID, action).
// Exceeding the limit returns false and audits the breach. Storage errors
// fail OPEN: availability is deliberately favored over strict enforcement
// for a companion that people lean on in hard moments.
func (g *Guard) CheckRateLimit(ctx context.Context, userID, action string, limit int) bool {
	count, _, err := g.store.IncrementRateWindow(ctx, userID, action, g.clock.Now(), g.rateWindow)
	if err != nil {
		g.logger.Warn("rate limit check degraded, allowing", "user", userID, "action", action, "error", err)
		return true
	}
	if count > limit {
		g.audit(ctx, userID, "rate_limit_exceeded", action)
		return false
	}
	return true
}

// EncryptMessage seals plaintext under the locally held key.
func (g *Guard) EncryptMessage(plaintext string) (string, error) {
	return g.cipher.Encrypt(plaintext)
}

// DecryptMessage opens ciphertext; failure is ErrCryptoFailure and must
// abort the read.
func (g *Guard) DecryptMessage(ciphertext string) (string, error) {
	return g.cipher.Decrypt(ciphertext)
}

// audit writes an append-only audit record. Audit failures are logged, not
// propagated: the triggering operation's outcome should not depend on the
// audit write.
func (g *Guard) audit(ctx context.Context, userID, action, detail string) {
	rec := storage.AuditRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		CreatedAt: g.clock.Now(),
	}
	if err := g.store.AppendAudit(ctx, rec); err != nil {
		g.logger.Error("audit write failed", "user", userID, "action", action, "error", err)
	}
}
