package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kalambet/solace/internal/storage"
)

// DurableStore defines the storage operations the conversation store needs.
// Implemented by storage.Store.
type DurableStore interface {
	AppendMessage(ctx context.Context, m storage.Message) error
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]storage.Message, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultCacheTTL = 5 * time.Minute
	subscriberBuf   = 8
)

// Store provides conversation history with a process-local read cache.
// The cache is not coherent across instances; a deployment running more
// than one process must route a user's traffic to a single instance.
type Store struct {
	store DurableStore
	clock Clock
	ttl   time.Duration

	mu      sync.RWMutex
	cache   map[string]*cachedHistory
	subs    map[string]map[int]chan storage.Message
	nextSub int
}

type cachedHistory struct {
	messages []storage.Message
	limit    int
	cachedAt time.Time
}

// NewStore creates a conversation Store with a 5-minute cache TTL.
func NewStore(store DurableStore) *Store {
	return NewStoreWithClock(store, realClock{}, defaultCacheTTL)
}

// NewStoreWithClock creates a Store with a custom clock and TTL (for testing).
func NewStoreWithClock(store DurableStore, clock Clock, ttl time.Duration) *Store {
	return &Store{
		store: store,
		clock: clock,
		ttl:   ttl,
		cache: make(map[string]*cachedHistory),
		subs:  make(map[string]map[int]chan storage.Message),
	}
}

// Append persists a message, invalidates the user's cached history, and fans
// the message out to subscribers. Sends never block; a subscriber that is not
// keeping up misses messages rather than stalling the append path.
func (s *Store) Append(ctx context.Context, m storage.Message) error {
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, m.UserID)
	s.evictStaleLocked()
	for _, ch := range s.subs[m.UserID] {
		select {
		case ch <- m:
		default:
		}
	}
	s.mu.Unlock()
	return nil
}

// History returns up to limit of the user's most recent messages in
// chronological order. Reads within the TTL are served from cache when the
// cached window covers the requested one.
func (s *Store) History(ctx context.Context, userID string, limit int) ([]storage.Message, error) {
	// Fast path: read lock for cache hit.
	s.mu.RLock()
	if entry, ok := s.cache[userID]; ok && entry.limit >= limit && s.clock.Now().Before(entry.cachedAt.Add(s.ttl)) {
		msgs := tail(entry.messages, limit)
		s.mu.RUnlock()
		return msgs, nil
	}
	s.mu.RUnlock()

	// Slow path: write lock for cache miss.
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if entry, ok := s.cache[userID]; ok && entry.limit >= limit && s.clock.Now().Before(entry.cachedAt.Add(s.ttl)) {
		return tail(entry.messages, limit), nil
	}

	msgs, err := s.store.GetRecentMessages(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	s.cache[userID] = &cachedHistory{messages: msgs, limit: limit, cachedAt: s.clock.Now()}
	s.evictStaleLocked()

	out := make([]storage.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Subscribe registers a listener for the user's new messages. The returned
// cancel func must be called when the listener is done; it closes the channel.
func (s *Store) Subscribe(userID string) (<-chan storage.Message, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan storage.Message, subscriberBuf)
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan storage.Message)
	}
	s.subs[userID][id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[userID][id]; ok {
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// evictStaleLocked drops cache entries past the TTL. Caller holds mu.
func (s *Store) evictStaleLocked() {
	now := s.clock.Now()
	for userID, entry := range s.cache {
		if !now.Before(entry.cachedAt.Add(s.ttl)) {
			delete(s.cache, userID)
		}
	}
}

// tail returns a copy of the last n messages in chronological order.
func tail(msgs []storage.Message, n int) []storage.Message {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]storage.Message, len(msgs))
	copy(out, msgs)
	return out
}
