package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SOLACE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "inference.base_url", typ: kString, env: "SOLACE_INFERENCE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Inference.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.BaseURL },
	},
	{
		key: "inference.model", typ: kString, env: "SOLACE_INFERENCE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Inference.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.Model },
	},
	{
		key: "inference.api_key", typ: kString, env: "SOLACE_INFERENCE_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Inference.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Inference.APIKey },
	},
	{
		key: "inference.temperature", typ: kFloat, env: "SOLACE_INFERENCE_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Inference.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Inference.Temperature },
	},
	{
		key: "inference.max_tokens", typ: kInt, env: "SOLACE_INFERENCE_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Inference.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Inference.MaxTokens },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SOLACE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "SOLACE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "companion.history_limit", typ: kInt, env: "SOLACE_COMPANION_HISTORY_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Companion.HistoryLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Companion.HistoryLimit },
	},
	{
		key: "companion.journal_context_entries", typ: kInt, env: "SOLACE_COMPANION_JOURNAL_CONTEXT_ENTRIES",
		apply:   func(cfg *Config, v any) { cfg.Companion.JournalContextEntries = v.(int) },
		extract: func(cfg Config) any { return cfg.Companion.JournalContextEntries },
	},
	{
		key: "companion.session_idle_timeout", typ: kString, env: "SOLACE_COMPANION_SESSION_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Companion.SessionIdleTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Companion.SessionIdleTimeout },
	},
	{
		key: "companion.chat_rate_limit", typ: kInt, env: "SOLACE_COMPANION_CHAT_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Companion.ChatRateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Companion.ChatRateLimit },
	},
	{
		key: "insights.cache_ttl", typ: kString, env: "SOLACE_INSIGHTS_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Insights.CacheTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Insights.CacheTTL },
	},
	{
		key: "insights.refresh_interval", typ: kString, env: "SOLACE_INSIGHTS_REFRESH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Insights.RefreshInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Insights.RefreshInterval },
	},
	{
		key: "retention.sweep_interval", typ: kString, env: "SOLACE_RETENTION_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Retention.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Retention.SweepInterval },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return fmt.Errorf("invalid float for %s: %w", s.key, err)
				}
				s.apply(cfg, f)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		v := os.Getenv(s.env)
		if v == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, v)
		case kInt:
			if i, err := strconv.Atoi(v); err == nil {
				s.apply(cfg, i)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				s.apply(cfg, f)
			}
		}
	}
}
