package config

import (
	"fmt"
)

type Config struct {
	Server    ServerConfig
	Inference InferenceConfig
	Storage   StorageConfig
	Log       LogConfig
	Companion CompanionConfig
	Insights  InsightsConfig
	Retention RetentionConfig
}

type ServerConfig struct {
	Port int
}

type InferenceConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type CompanionConfig struct {
	HistoryLimit          int
	JournalContextEntries int
	SessionIdleTimeout    string
	ChatRateLimit         int
}

type InsightsConfig struct {
	CacheTTL        string
	RefreshInterval string
}

type RetentionConfig struct {
	SweepInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Inference: InferenceConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "anthropic/claude-sonnet-4",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Companion: CompanionConfig{
			HistoryLimit:          20,
			JournalContextEntries: 3,
			SessionIdleTimeout:    "30m",
			ChatRateLimit:         30,
		},
		Insights: InsightsConfig{
			CacheTTL:        "6h",
			RefreshInterval: "1h",
		},
		Retention: RetentionConfig{
			SweepInterval: "1h",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.solace.app) and secrets
// fall back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/solace/config.json and secrets live in a mode-0600 file
// under $XDG_DATA_HOME/solace.
//
// Environment variables (SOLACE_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try platform keychain for the inference API key if still empty.
	if cfg.Inference.APIKey == "" {
		if key, err := kc.Get(keychainService, "inference_api_key"); err == nil && key != "" {
			cfg.Inference.APIKey = key
		}
	}

	if cfg.Inference.APIKey == "" {
		msg := "missing required config: inference API key. " +
			"Set it via environment variable SOLACE_INFERENCE_API_KEY" +
			apiKeyHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}
