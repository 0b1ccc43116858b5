package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding every collection the companion core
// owns: messages, journal entries, insights, privacy and retention settings,
// rate-limit counters, session activity markers, and the audit log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "solace.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't
// been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// timeLayout keeps nanosecond precision with a fixed-width fraction so the
// stored TEXT values compare lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// --- Messages ---

// AppendMessage writes a message to the user's conversation partition.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	replies := m.SuggestedReplies
	if replies == "" {
		replies = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, role, content, encrypted, detected_mood, suggested_replies, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, string(m.Role), m.Content, m.Encrypted, m.DetectedMood, replies, formatTime(m.CreatedAt),
	)
	return err
}

// GetRecentMessages returns up to limit of the user's most recent messages
// ordered oldest to newest. Same-timestamp messages keep their append order:
// rowid breaks the tie, never the random message ID.
func (s *Store) GetRecentMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, encrypted, detected_mood, suggested_replies, created_at
		FROM messages WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.Encrypted, &m.DetectedMood, &m.SuggestedReplies, &createdAt); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; flip to chronological order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// DeleteMessagesBefore removes the user's messages older than cutoff and
// returns the number removed.
func (s *Store) DeleteMessagesBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND created_at < ?`, userID, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Journal entries ---

func (s *Store) SaveJournalEntry(ctx context.Context, e JournalEntry) error {
	tags := e.Tags
	if tags == "" {
		tags = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, user_id, mood, content, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Mood, e.Content, tags, formatTime(e.CreatedAt),
	)
	return err
}

// GetRecentJournalEntries returns up to limit entries ordered newest first.
func (s *Store) GetRecentJournalEntries(ctx context.Context, userID string, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, mood, content, tags, created_at
		FROM journal_entries WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Mood, &e.Content, &e.Tags, &createdAt); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ListJournalUsers returns the IDs of all users with at least one journal
// entry, for background jobs that iterate users.
func (s *Store) ListJournalUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM journal_entries ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// LatestJournalEntryTime returns the creation time of the user's newest
// journal entry, or ErrNotFound when they have none.
func (s *Store) LatestJournalEntryTime(ctx context.Context, userID string) (time.Time, error) {
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM journal_entries WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`, userID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(createdAt)
}

func (s *Store) DeleteJournalEntriesBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM journal_entries WHERE user_id = ? AND created_at < ?`, userID, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Insights ---

// ReplaceInsights marks the user's current insights as superseded and inserts
// the new batch in a single transaction.
func (s *Store) ReplaceInsights(ctx context.Context, userID string, insights []Insight) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE insights SET superseded_at = ? WHERE user_id = ? AND superseded_at IS NULL`, now, userID); err != nil {
		return fmt.Errorf("superseding insights: %w", err)
	}

	for _, in := range insights {
		actions := in.ActionItems
		if actions == "" {
			actions = "[]"
		}
		related := in.RelatedEntries
		if related == "" {
			related = "[]"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO insights (id, user_id, type, title, content, action_items, priority, related_entries, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			in.ID, in.UserID, string(in.Type), in.Title, in.Content, actions, string(in.Priority), related, formatTime(in.CreatedAt),
		); err != nil {
			return fmt.Errorf("inserting insight %s: %w", in.ID, err)
		}
	}

	return tx.Commit()
}

// ListInsights returns the user's current (non-superseded) insights ordered
// by priority then recency.
func (s *Store) ListInsights(ctx context.Context, userID string) ([]Insight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, content, action_items, priority, related_entries, created_at
		FROM insights WHERE user_id = ? AND superseded_at IS NULL
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Insight
	for rows.Next() {
		var in Insight
		var typ, priority, createdAt string
		if err := rows.Scan(&in.ID, &in.UserID, &typ, &in.Title, &in.Content, &in.ActionItems, &priority, &in.RelatedEntries, &createdAt); err != nil {
			return nil, err
		}
		in.Type = InsightType(typ)
		in.Priority = Priority(priority)
		if in.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, in)
	}
	return results, rows.Err()
}

// GetInsight returns a single current insight by ID.
func (s *Store) GetInsight(ctx context.Context, userID, id string) (Insight, error) {
	var in Insight
	var typ, priority, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, content, action_items, priority, related_entries, created_at
		FROM insights WHERE user_id = ? AND id = ?`, userID, id,
	).Scan(&in.ID, &in.UserID, &typ, &in.Title, &in.Content, &in.ActionItems, &priority, &in.RelatedEntries, &createdAt)
	if err == sql.ErrNoRows {
		return Insight{}, ErrNotFound
	}
	if err != nil {
		return Insight{}, err
	}
	in.Type = InsightType(typ)
	in.Priority = Priority(priority)
	if in.CreatedAt, err = parseTime(createdAt); err != nil {
		return Insight{}, err
	}
	return in, nil
}

// SaveInsightEvent records an interaction with an insight. The insight row
// itself is never mutated.
func (s *Store) SaveInsightEvent(ctx context.Context, ev InsightEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_events (id, user_id, insight_id, event, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.InsightID, ev.Event, formatTime(ev.CreatedAt),
	)
	return err
}

func (s *Store) DeleteInsightsBefore(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM insights WHERE user_id = ? AND created_at < ?`, userID, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Privacy & retention settings ---

func (s *Store) GetPrivacySettings(ctx context.Context, userID string) (PrivacySettings, error) {
	var ps PrivacySettings
	var deleteAfter sql.NullInt64
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, encrypt_conversations, allow_data_analysis, share_insights_with_partner,
		       delete_data_after_days, anonymize_data, export_data_allowed, updated_at
		FROM privacy_settings WHERE user_id = ?`, userID,
	).Scan(&ps.UserID, &ps.EncryptConversations, &ps.AllowDataAnalysis, &ps.ShareInsightsWithPartner,
		&deleteAfter, &ps.AnonymizeData, &ps.ExportDataAllowed, &updatedAt)
	if err == sql.ErrNoRows {
		return PrivacySettings{}, ErrNotFound
	}
	if err != nil {
		return PrivacySettings{}, err
	}
	if deleteAfter.Valid {
		days := int(deleteAfter.Int64)
		ps.DeleteDataAfterDays = &days
	}
	if ps.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return PrivacySettings{}, err
	}
	return ps, nil
}

func (s *Store) SavePrivacySettings(ctx context.Context, ps PrivacySettings) error {
	var deleteAfter any
	if ps.DeleteDataAfterDays != nil {
		deleteAfter = *ps.DeleteDataAfterDays
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_settings (user_id, encrypt_conversations, allow_data_analysis, share_insights_with_partner,
		                              delete_data_after_days, anonymize_data, export_data_allowed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			encrypt_conversations = excluded.encrypt_conversations,
			allow_data_analysis = excluded.allow_data_analysis,
			share_insights_with_partner = excluded.share_insights_with_partner,
			delete_data_after_days = excluded.delete_data_after_days,
			anonymize_data = excluded.anonymize_data,
			export_data_allowed = excluded.export_data_allowed,
			updated_at = excluded.updated_at`,
		ps.UserID, ps.EncryptConversations, ps.AllowDataAnalysis, ps.ShareInsightsWithPartner,
		deleteAfter, ps.AnonymizeData, ps.ExportDataAllowed, formatTime(ps.UpdatedAt),
	)
	return err
}

func (s *Store) GetRetentionPolicy(ctx context.Context, userID string) (RetentionPolicy, error) {
	var rp RetentionPolicy
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, conversation_days, journal_days, insight_days, auto_delete_enabled, updated_at
		FROM retention_policies WHERE user_id = ?`, userID,
	).Scan(&rp.UserID, &rp.ConversationDays, &rp.JournalDays, &rp.InsightDays, &rp.AutoDeleteEnabled, &updatedAt)
	if err == sql.ErrNoRows {
		return RetentionPolicy{}, ErrNotFound
	}
	if err != nil {
		return RetentionPolicy{}, err
	}
	if rp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return RetentionPolicy{}, err
	}
	return rp, nil
}

func (s *Store) SaveRetentionPolicy(ctx context.Context, rp RetentionPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retention_policies (user_id, conversation_days, journal_days, insight_days, auto_delete_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			conversation_days = excluded.conversation_days,
			journal_days = excluded.journal_days,
			insight_days = excluded.insight_days,
			auto_delete_enabled = excluded.auto_delete_enabled,
			updated_at = excluded.updated_at`,
		rp.UserID, rp.ConversationDays, rp.JournalDays, rp.InsightDays, rp.AutoDeleteEnabled, formatTime(rp.UpdatedAt),
	)
	return err
}

// ListAutoDeletePolicies returns every retention policy with auto-delete
// enabled, for the retention sweeper.
func (s *Store) ListAutoDeletePolicies(ctx context.Context) ([]RetentionPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, conversation_days, journal_days, insight_days, auto_delete_enabled, updated_at
		FROM retention_policies WHERE auto_delete_enabled = 1`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RetentionPolicy
	for rows.Next() {
		var rp RetentionPolicy
		var updatedAt string
		if err := rows.Scan(&rp.UserID, &rp.ConversationDays, &rp.JournalDays, &rp.InsightDays, &rp.AutoDeleteEnabled, &updatedAt); err != nil {
			return nil, err
		}
		if rp.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		results = append(results, rp)
	}
	return results, rows.Err()
}

// --- Rate limits & sessions ---

// IncrementRateWindow atomically increments the fixed-window counter for
// (userID, action), resetting it when the stored window has expired. The
// post-increment count and the window's reset time are returned. A single
// UPSERT keeps the increment-and-compare atomic under concurrent access.
func (s *Store) IncrementRateWindow(ctx context.Context, userID, action string, now time.Time, window time.Duration) (int, time.Time, error) {
	nowStr := formatTime(now)
	resetStr := formatTime(now.Add(window))

	var count int
	var resetAt string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (user_id, action, count, window_reset_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, action) DO UPDATE SET
			count = CASE WHEN rate_limits.window_reset_at <= ? THEN 1 ELSE rate_limits.count + 1 END,
			window_reset_at = CASE WHEN rate_limits.window_reset_at <= ? THEN ? ELSE rate_limits.window_reset_at END
		RETURNING count, window_reset_at`,
		userID, action, resetStr, nowStr, nowStr, resetStr,
	).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, err
	}

	reset, err := parseTime(resetAt)
	if err != nil {
		return 0, time.Time{}, err
	}
	return count, reset, nil
}

// TouchSession stamps the user's last-activity marker.
func (s *Store) TouchSession(ctx context.Context, userID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, last_activity) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET last_activity = excluded.last_activity`,
		userID, formatTime(now),
	)
	return err
}

// GetLastActivity returns the user's last recorded activity time, or
// ErrNotFound when no session has been recorded.
func (s *Store) GetLastActivity(ctx context.Context, userID string) (time.Time, error) {
	var lastActivity string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_activity FROM sessions WHERE user_id = ?`, userID,
	).Scan(&lastActivity)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(lastActivity)
}

// --- Audit log ---

// AppendAudit writes an append-only audit record.
func (s *Store) AppendAudit(ctx context.Context, a AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Action, a.Detail, formatTime(a.CreatedAt),
	)
	return err
}

// ListAudit returns the user's most recent audit records, newest first.
func (s *Store) ListAudit(ctx context.Context, userID string, limit int) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, detail, created_at
		FROM audit_log WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []AuditRecord
	for rows.Next() {
		var a AuditRecord
		var createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.Detail, &createdAt); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Account erasure ---

// userDataCategories lists the erasable collections in deletion order.
// The audit log is intentionally excluded: deletion itself must remain
// auditable.
var userDataCategories = []struct {
	name  string
	query string
}{
	{"conversations", "DELETE FROM messages WHERE user_id = ?"},
	{"journal", "DELETE FROM journal_entries WHERE user_id = ?"},
	{"insights", "DELETE FROM insights WHERE user_id = ?"},
	{"insight_events", "DELETE FROM insight_events WHERE user_id = ?"},
	{"privacy_settings", "DELETE FROM privacy_settings WHERE user_id = ?"},
	{"retention_policies", "DELETE FROM retention_policies WHERE user_id = ?"},
	{"rate_limits", "DELETE FROM rate_limits WHERE user_id = ?"},
	{"sessions", "DELETE FROM sessions WHERE user_id = ?"},
}

// DeleteUserData removes every category of user-owned data. Each category is
// deleted independently so a failure in one does not block the rest; the
// report lists what was removed and what failed.
func (s *Store) DeleteUserData(ctx context.Context, userID string) (DeleteReport, error) {
	report := DeleteReport{Failed: make(map[string]string)}
	for _, cat := range userDataCategories {
		if _, err := s.db.ExecContext(ctx, cat.query, userID); err != nil {
			report.Failed[cat.name] = err.Error()
			continue
		}
		report.Deleted = append(report.Deleted, cat.name)
	}
	if !report.Complete() {
		return report, fmt.Errorf("partial deletion: %d of %d categories failed", len(report.Failed), len(userDataCategories))
	}
	return report, nil
}
