package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/solace/internal/security"
	"github.com/kalambet/solace/internal/storage"
)

// Store defines the storage operations the journal service needs.
// Implemented by storage.Store.
type Store interface {
	SaveJournalEntry(ctx context.Context, e storage.JournalEntry) error
	GetRecentJournalEntries(ctx context.Context, userID string, limit int) ([]storage.JournalEntry, error)
	LatestJournalEntryTime(ctx context.Context, userID string) (time.Time, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Entry is a journal record with its tags decoded.
type Entry struct {
	ID        string
	Mood      string
	Content   string
	Tags      []string
	CreatedAt time.Time
}

// Reader is the read-only view consumed by prompt assembly and the insight
// engine. Entries come back newest first.
type Reader interface {
	Recent(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Service provides journal reads and the entry write path.
type Service struct {
	store Store
	clock Clock
}

// NewService creates a journal Service.
func NewService(store Store) *Service {
	return &Service{store: store, clock: realClock{}}
}

// NewServiceWithClock creates a Service with a custom clock (for testing).
func NewServiceWithClock(store Store, clock Clock) *Service {
	return &Service{store: store, clock: clock}
}

// Add validates and persists a new journal entry.
func (s *Service) Add(ctx context.Context, userID, mood, content string, tags []string) (Entry, error) {
	mood = strings.TrimSpace(mood)
	content = strings.TrimSpace(content)
	if mood == "" {
		return Entry{}, fmt.Errorf("%w: mood is required", security.ErrValidationFailed)
	}
	if content == "" {
		return Entry{}, fmt.Errorf("%w: content is required", security.ErrValidationFailed)
	}

	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding tags: %w", err)
	}

	e := Entry{
		ID:        uuid.New().String(),
		Mood:      mood,
		Content:   content,
		Tags:      tags,
		CreatedAt: s.clock.Now(),
	}
	err = s.store.SaveJournalEntry(ctx, storage.JournalEntry{
		ID:        e.ID,
		UserID:    userID,
		Mood:      e.Mood,
		Content:   e.Content,
		Tags:      string(encoded),
		CreatedAt: e.CreatedAt,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("saving journal entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit of the user's journal entries, newest first.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	rows, err := s.store.GetRecentJournalEntries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading journal entries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{
			ID:        r.ID,
			Mood:      r.Mood,
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		}
		if r.Tags != "" {
			if err := json.Unmarshal([]byte(r.Tags), &e.Tags); err != nil {
				slog.Warn("malformed journal tags, skipping", "entry", r.ID, "error", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LatestEntryTime returns the creation time of the user's newest entry, or
// storage.ErrNotFound when they have none.
func (s *Service) LatestEntryTime(ctx context.Context, userID string) (time.Time, error) {
	return s.store.LatestJournalEntryTime(ctx, userID)
}
