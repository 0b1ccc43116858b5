package config

import (
	"testing"
)

// mockBackend is an in-memory ConfigBackend.
type mockBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (m *mockBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strings[key]
	return v, ok, nil
}

func (m *mockBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mockBackend) SetString(key, val string) error {
	if m.strings == nil {
		m.strings = make(map[string]string)
	}
	m.strings[key] = val
	return nil
}

func (m *mockBackend) SetInt(key string, val int) error {
	if m.ints == nil {
		m.ints = make(map[string]int)
	}
	m.ints[key] = val
	return nil
}

func (m *mockBackend) Delete(key string) error { return nil }

// mockKeychain is a test double for the secret store.
type mockKeychain struct {
	data map[string]string
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	return m.data[service+"/"+account], nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[service+"/"+account] = value
	return nil
}

func TestDefaults(t *testing.T) {
	t.Setenv("SOLACE_INFERENCE_API_KEY", "test-key")

	cfg, err := loadWith(&mockBackend{}, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Companion.HistoryLimit != 20 {
		t.Errorf("Companion.HistoryLimit = %d, want 20", cfg.Companion.HistoryLimit)
	}
	if cfg.Companion.JournalContextEntries != 3 {
		t.Errorf("Companion.JournalContextEntries = %d, want 3", cfg.Companion.JournalContextEntries)
	}
	if cfg.Companion.SessionIdleTimeout != "30m" {
		t.Errorf("Companion.SessionIdleTimeout = %q, want %q", cfg.Companion.SessionIdleTimeout, "30m")
	}
	if cfg.Insights.CacheTTL != "6h" {
		t.Errorf("Insights.CacheTTL = %q, want %q", cfg.Insights.CacheTTL, "6h")
	}
	if cfg.Inference.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("Inference.BaseURL = %q", cfg.Inference.BaseURL)
	}
}

func TestBackendValuesApplied(t *testing.T) {
	t.Setenv("SOLACE_INFERENCE_API_KEY", "test-key")

	b := &mockBackend{
		strings: map[string]string{"log.level": "debug"},
		ints:    map[string]int{"server.port": 5000, "companion.history_limit": 50},
	}
	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Companion.HistoryLimit != 50 {
		t.Errorf("Companion.HistoryLimit = %d, want 50", cfg.Companion.HistoryLimit)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("SOLACE_INFERENCE_API_KEY", "test-key")
	t.Setenv("SOLACE_SERVER_PORT", "7000")

	b := &mockBackend{ints: map[string]int{"server.port": 5000}}
	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 (env override)", cfg.Server.Port)
	}
}

func TestMissingAPIKeyFails(t *testing.T) {
	t.Setenv("SOLACE_INFERENCE_API_KEY", "")

	if _, err := loadWith(&mockBackend{}, &mockKeychain{}); err == nil {
		t.Fatal("expected error when inference API key is missing")
	}
}

func TestAPIKeyFromKeychain(t *testing.T) {
	t.Setenv("SOLACE_INFERENCE_API_KEY", "")

	kc := &mockKeychain{data: map[string]string{"solace/inference_api_key": "kc-key"}}
	cfg, err := loadWith(&mockBackend{}, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Inference.APIKey != "kc-key" {
		t.Errorf("Inference.APIKey = %q, want kc-key", cfg.Inference.APIKey)
	}
}

func TestGetAPITokenGeneratesOnce(t *testing.T) {
	kc := &mockKeychain{}

	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}

	second, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken second call: %v", err)
	}
	if first != second {
		t.Error("expected stable token across calls")
	}
}

func TestGetEncryptionKeyStable(t *testing.T) {
	kc := &mockKeychain{}

	k1, err := GetEncryptionKey(kc)
	if err != nil {
		t.Fatalf("GetEncryptionKey: %v", err)
	}
	if len(k1) != 32 {
		t.Fatalf("expected 32-byte key, got %d", len(k1))
	}

	k2, err := GetEncryptionKey(kc)
	if err != nil {
		t.Fatalf("GetEncryptionKey second call: %v", err)
	}
	if string(k1) != string(k2) {
		t.Error("expected stable key across calls")
	}
}
