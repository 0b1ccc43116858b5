package security

import (
	"context"
	"errors"
	"testing"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func TestGetPrivacySettingsDefaults(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	ps, err := g.GetPrivacySettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPrivacySettings: %v", err)
	}
	if !ps.AllowDataAnalysis {
		t.Error("expected AllowDataAnalysis default true")
	}
	if !ps.ExportDataAllowed {
		t.Error("expected ExportDataAllowed default true")
	}
	if !ps.EncryptConversations {
		t.Error("expected EncryptConversations default true")
	}
	if ps.DeleteDataAfterDays != nil {
		t.Error("expected DeleteDataAfterDays default nil")
	}
}

func TestUpdatePrivacySettingsPartial(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	ps, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{
		EncryptConversations: boolPtr(true),
		DeleteDataAfterDays:  intPtr(90),
	})
	if err != nil {
		t.Fatalf("UpdatePrivacySettings: %v", err)
	}
	if !ps.EncryptConversations {
		t.Error("EncryptConversations not applied")
	}
	if ps.DeleteDataAfterDays == nil || *ps.DeleteDataAfterDays != 90 {
		t.Errorf("DeleteDataAfterDays = %v, want 90", ps.DeleteDataAfterDays)
	}
	// Untouched fields keep their defaults.
	if !ps.AllowDataAnalysis {
		t.Error("AllowDataAnalysis should be unchanged")
	}

	// A later partial update leaves earlier changes intact.
	ps, err = g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{AllowDataAnalysis: boolPtr(false)})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !ps.EncryptConversations {
		t.Error("EncryptConversations lost by unrelated update")
	}
	if ps.AllowDataAnalysis {
		t.Error("AllowDataAnalysis not applied")
	}
}

func TestUpdatePrivacySettingsClearDeleteAfter(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	if _, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{DeleteDataAfterDays: intPtr(30)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ps, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{ClearDeleteAfter: true})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ps.DeleteDataAfterDays != nil {
		t.Errorf("expected nil DeleteDataAfterDays, got %v", *ps.DeleteDataAfterDays)
	}
}

func TestUpdatePrivacySettingsValidation(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	_, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{DeleteDataAfterDays: intPtr(0)})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
	_, err = g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{DeleteDataAfterDays: intPtr(-5)})
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed, got %v", err)
	}
}

func TestUpdatePrivacySettingsAudited(t *testing.T) {
	g, store, _ := testGuard(t, Options{})
	ctx := context.Background()

	if _, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{AnonymizeData: boolPtr(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	records, err := store.ListAudit(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	found := false
	for _, r := range records {
		if r.Action == "privacy_settings_updated" && r.Detail == "anonymize_data" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected privacy_settings_updated audit record, got %+v", records)
	}
}

func TestPrivacySettingsCacheInvalidatedOnUpdate(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	before, err := g.GetPrivacySettings(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if before.AnonymizeData {
		t.Fatal("unexpected default")
	}
	if _, err := g.UpdatePrivacySettings(ctx, "u1", PrivacyUpdate{AnonymizeData: boolPtr(true)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, err := g.GetPrivacySettings(ctx, "u1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if !after.AnonymizeData {
		t.Error("read served stale cache entry after update")
	}
}

func TestRetentionPolicyDefaults(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	rp, err := g.GetRetentionPolicy(ctx, "u1")
	if err != nil {
		t.Fatalf("GetRetentionPolicy: %v", err)
	}
	if rp.ConversationDays != -1 || rp.JournalDays != -1 || rp.InsightDays != -1 {
		t.Errorf("expected unbounded defaults, got %+v", rp)
	}
	if rp.AutoDeleteEnabled {
		t.Error("expected auto-delete disabled by default")
	}
}

func TestUpdateRetentionPolicy(t *testing.T) {
	g, _, _ := testGuard(t, Options{})
	ctx := context.Background()

	rp, err := g.UpdateRetentionPolicy(ctx, "u1", RetentionUpdate{
		ConversationDays:  intPtr(30),
		AutoDeleteEnabled: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("UpdateRetentionPolicy: %v", err)
	}
	if rp.ConversationDays != 30 {
		t.Errorf("ConversationDays = %d, want 30", rp.ConversationDays)
	}
	if rp.JournalDays != -1 {
		t.Errorf("JournalDays = %d, want untouched -1", rp.JournalDays)
	}
	if !rp.AutoDeleteEnabled {
		t.Error("AutoDeleteEnabled not applied")
	}

	if _, err := g.UpdateRetentionPolicy(ctx, "u1", RetentionUpdate{JournalDays: intPtr(0)}); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("expected ErrValidationFailed for zero days, got %v", err)
	}
	if _, err := g.UpdateRetentionPolicy(ctx, "u1", RetentionUpdate{InsightDays: intPtr(-1)}); err != nil {
		t.Errorf("-1 should be accepted as unbounded, got %v", err)
	}
}
