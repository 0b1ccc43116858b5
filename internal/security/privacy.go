package security

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/solace/internal/storage"
)

// PrivacyUpdate carries a partial settings change; nil fields are left
// untouched. ClearDeleteAfter resets DeleteDataAfterDays to "never".
type PrivacyUpdate struct {
	EncryptConversations     *bool
	AllowDataAnalysis        *bool
	ShareInsightsWithPartner *bool
	DeleteDataAfterDays      *int
	ClearDeleteAfter         bool
	AnonymizeData            *bool
	ExportDataAllowed        *bool
}

// RetentionUpdate carries a partial retention-policy change; nil fields are
// left untouched. Day windows must be -1 (unbounded) or positive.
type RetentionUpdate struct {
	ConversationDays  *int
	JournalDays       *int
	InsightDays       *int
	AutoDeleteEnabled *bool
}

func defaultPrivacySettings(userID string) storage.PrivacySettings {
	return storage.PrivacySettings{
		UserID:               userID,
		EncryptConversations: true,
		AllowDataAnalysis:    true,
		ExportDataAllowed:    true,
	}
}

func defaultRetentionPolicy(userID string) storage.RetentionPolicy {
	return storage.RetentionPolicy{
		UserID:           userID,
		ConversationDays: -1,
		JournalDays:      -1,
		InsightDays:      -1,
	}
}

// GetPrivacySettings returns the user's settings, creating defaults on
// first use. Reads are served from a short-lived local cache.
func (g *Guard) GetPrivacySettings(ctx context.Context, userID string) (storage.PrivacySettings, error) {
	g.mu.RLock()
	if entry, ok := g.settingsCache[userID]; ok && g.clock.Now().Before(entry.cachedAt.Add(settingsCacheTTL)) {
		g.mu.RUnlock()
		return entry.settings, nil
	}
	g.mu.RUnlock()

	ps, err := g.store.GetPrivacySettings(ctx, userID)
	if err == storage.ErrNotFound {
		ps = defaultPrivacySettings(userID)
		ps.UpdatedAt = g.clock.Now()
		if err := g.store.SavePrivacySettings(ctx, ps); err != nil {
			return storage.PrivacySettings{}, fmt.Errorf("creating default privacy settings: %w", err)
		}
	} else if err != nil {
		return storage.PrivacySettings{}, fmt.Errorf("loading privacy settings: %w", err)
	}

	g.mu.Lock()
	g.settingsCache[userID] = cachedSettings{settings: ps, cachedAt: g.clock.Now()}
	g.mu.Unlock()
	return ps, nil
}

// UpdatePrivacySettings merges a partial update into the stored settings,
// re-validating the result, and audits the change. The cache entry is
// invalidated so in-flight readers see the previous consistent snapshot,
// never a torn one.
func (g *Guard) UpdatePrivacySettings(ctx context.Context, userID string, upd PrivacyUpdate) (storage.PrivacySettings, error) {
	ps, err := g.GetPrivacySettings(ctx, userID)
	if err != nil {
		return storage.PrivacySettings{}, err
	}

	var changed []string
	if upd.EncryptConversations != nil {
		ps.EncryptConversations = *upd.EncryptConversations
		changed = append(changed, "encrypt_conversations")
	}
	if upd.AllowDataAnalysis != nil {
		ps.AllowDataAnalysis = *upd.AllowDataAnalysis
		changed = append(changed, "allow_data_analysis")
	}
	if upd.ShareInsightsWithPartner != nil {
		ps.ShareInsightsWithPartner = *upd.ShareInsightsWithPartner
		changed = append(changed, "share_insights_with_partner")
	}
	if upd.ClearDeleteAfter {
		ps.DeleteDataAfterDays = nil
		changed = append(changed, "delete_data_after_days")
	} else if upd.DeleteDataAfterDays != nil {
		if *upd.DeleteDataAfterDays <= 0 {
			return storage.PrivacySettings{}, fmt.Errorf("%w: delete_data_after_days must be positive", ErrValidationFailed)
		}
		days := *upd.DeleteDataAfterDays
		ps.DeleteDataAfterDays = &days
		changed = append(changed, "delete_data_after_days")
	}
	if upd.AnonymizeData != nil {
		ps.AnonymizeData = *upd.AnonymizeData
		changed = append(changed, "anonymize_data")
	}
	if upd.ExportDataAllowed != nil {
		ps.ExportDataAllowed = *upd.ExportDataAllowed
		changed = append(changed, "export_data_allowed")
	}

	if len(changed) == 0 {
		return ps, nil
	}

	ps.UpdatedAt = g.clock.Now()
	if err := g.store.SavePrivacySettings(ctx, ps); err != nil {
		return storage.PrivacySettings{}, fmt.Errorf("saving privacy settings: %w", err)
	}

	g.mu.Lock()
	delete(g.settingsCache, userID)
	g.mu.Unlock()

	g.audit(ctx, userID, "privacy_settings_updated", strings.Join(changed, ","))
	return ps, nil
}

// GetRetentionPolicy returns the user's retention policy, creating the
// unbounded default on first use.
func (g *Guard) GetRetentionPolicy(ctx context.Context, userID string) (storage.RetentionPolicy, error) {
	rp, err := g.store.GetRetentionPolicy(ctx, userID)
	if err == storage.ErrNotFound {
		rp = defaultRetentionPolicy(userID)
		rp.UpdatedAt = g.clock.Now()
		if err := g.store.SaveRetentionPolicy(ctx, rp); err != nil {
			return storage.RetentionPolicy{}, fmt.Errorf("creating default retention policy: %w", err)
		}
		return rp, nil
	}
	if err != nil {
		return storage.RetentionPolicy{}, fmt.Errorf("loading retention policy: %w", err)
	}
	return rp, nil
}

// UpdateRetentionPolicy merges a partial update, validates day windows, and
// audits the change.
func (g *Guard) UpdateRetentionPolicy(ctx context.Context, userID string, upd RetentionUpdate) (storage.RetentionPolicy, error) {
	rp, err := g.GetRetentionPolicy(ctx, userID)
	if err != nil {
		return storage.RetentionPolicy{}, err
	}

	var changed []string
	for _, f := range []struct {
		name string
		src  *int
		dst  *int
	}{
		{"conversation_days", upd.ConversationDays, &rp.ConversationDays},
		{"journal_days", upd.JournalDays, &rp.JournalDays},
		{"insight_days", upd.InsightDays, &rp.InsightDays},
	} {
		if f.src == nil {
			continue
		}
		if *f.src != -1 && *f.src <= 0 {
			return storage.RetentionPolicy{}, fmt.Errorf("%w: %s must be -1 or positive", ErrValidationFailed, f.name)
		}
		*f.dst = *f.src
		changed = append(changed, f.name)
	}
	if upd.AutoDeleteEnabled != nil {
		rp.AutoDeleteEnabled = *upd.AutoDeleteEnabled
		changed = append(changed, "auto_delete_enabled")
	}

	if len(changed) == 0 {
		return rp, nil
	}

	rp.UpdatedAt = g.clock.Now()
	if err := g.store.SaveRetentionPolicy(ctx, rp); err != nil {
		return storage.RetentionPolicy{}, fmt.Errorf("saving retention policy: %w", err)
	}

	g.audit(ctx, userID, "retention_policy_updated", strings.Join(changed, ","))
	return rp, nil
}
