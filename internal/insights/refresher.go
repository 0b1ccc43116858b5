package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/solace/internal/notify"
	"github.com/kalambet/solace/internal/storage"
)

// UserLister enumerates users the refresher should recompute insights for.
// Implemented by storage.Store.
type UserLister interface {
	ListJournalUsers(ctx context.Context) ([]string, error)
}

// Refresher periodically recomputes insights for every journaling user and
// announces newly surfaced high-priority insights through the dispatcher.
type Refresher struct {
	engine     *Engine
	users      UserLister
	dispatcher *notify.Dispatcher
	interval   time.Duration
	logger     *slog.Logger

	// announced remembers which high-priority insight types a user was
	// already told about, so a stable insight is not re-announced each cycle.
	announced map[string]map[storage.InsightType]bool
}

// NewRefresher creates a Refresher. If interval <= 0, it defaults to 1 hour.
func NewRefresher(engine *Engine, users UserLister, dispatcher *notify.Dispatcher, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		engine:     engine,
		users:      users,
		dispatcher: dispatcher,
		interval:   interval,
		logger:     logger,
		announced:  make(map[string]map[storage.InsightType]bool),
	}
}

// Run refreshes on the interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("insight refresh failed", "error", err)
		}
	}
}

// RunOnce refreshes insights for every journaling user and dispatches
// notifications for high-priority insights not announced before.
func (r *Refresher) RunOnce(ctx context.Context) error {
	users, err := r.users.ListJournalUsers(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}

	var pending []notify.Notification
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pending = append(pending, r.refreshUser(ctx, userID)...)
	}

	if len(pending) == 0 {
		return nil
	}
	return r.dispatcher.Dispatch(ctx, pending)
}

func (r *Refresher) refreshUser(ctx context.Context, userID string) []notify.Notification {
	batch := r.engine.GetPersonalizedInsights(ctx, userID)

	current := make(map[storage.InsightType]bool)
	var out []notify.Notification
	for _, in := range batch {
		if in.Priority != storage.PriorityHigh {
			continue
		}
		current[in.Type] = true
		if r.announced[userID][in.Type] {
			continue
		}
		out = append(out, notify.Notification{
			Recipient: userID,
			Title:     in.Title,
			Body:      in.Content,
			Data:      map[string]string{"insight_id": in.ID, "type": string(in.Type)},
		})
	}
	r.announced[userID] = current
	return out
}
