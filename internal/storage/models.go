package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single conversation message. Messages are immutable once
// written; Content holds ciphertext when Encrypted is true, and the two
// fields are always written together.
type Message struct {
	ID               string
	UserID           string
	Role             Role
	Content          string
	Encrypted        bool
	DetectedMood     string
	SuggestedReplies string // JSON array stored as text
	CreatedAt        time.Time
}

// JournalEntry is a user's journal record, read-only to the companion core.
type JournalEntry struct {
	ID        string
	UserID    string
	Mood      string
	Content   string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
}

// InsightType classifies a generated insight.
type InsightType string

const (
	InsightMoodPattern        InsightType = "mood_pattern"
	InsightRelationshipAdvice InsightType = "relationship_advice"
	InsightSelfCare           InsightType = "self_care"
	InsightGoalProgress       InsightType = "goal_progress"
	InsightCelebration        InsightType = "celebration"
)

// Priority ranks an insight for display ordering.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Insight is a generated observation. Insights are never mutated; a
// recomputation supersedes the previous batch.
type Insight struct {
	ID             string
	UserID         string
	Type           InsightType
	Title          string
	Content        string
	ActionItems    string // JSON array stored as text
	Priority       Priority
	RelatedEntries string // JSON array of journal entry IDs
	CreatedAt      time.Time
}

// InsightEvent records a user interaction with an insight (e.g. "read").
type InsightEvent struct {
	ID        string
	UserID    string
	InsightID string
	Event     string
	CreatedAt time.Time
}

// PrivacySettings holds a user's per-category privacy flags.
// DeleteDataAfterDays of nil means "never".
type PrivacySettings struct {
	UserID                   string
	EncryptConversations     bool
	AllowDataAnalysis        bool
	ShareInsightsWithPartner bool
	DeleteDataAfterDays      *int
	AnonymizeData            bool
	ExportDataAllowed        bool
	UpdatedAt                time.Time
}

// RetentionPolicy holds per-category retention windows in days.
// A window of -1 means unbounded.
type RetentionPolicy struct {
	UserID            string
	ConversationDays  int
	JournalDays       int
	InsightDays       int
	AutoDeleteEnabled bool
	UpdatedAt         time.Time
}

// AuditRecord is an append-only log entry for security-relevant outcomes.
type AuditRecord struct {
	ID        string
	UserID    string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// DeleteReport describes the outcome of a batch account erasure.
// Failed maps category name to the error message for categories that
// could not be removed.
type DeleteReport struct {
	Deleted []string
	Failed  map[string]string
}

// Complete reports whether every category was removed.
func (r DeleteReport) Complete() bool {
	return len(r.Failed) == 0
}
