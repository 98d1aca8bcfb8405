// Package config loads the debate engine's configuration envelope
// (spec.md §6) from defaults, a YAML file, and environment variables, in
// that order of increasing precedence — grounded on the teacher pack's
// cmd/root.go viper bootstrap (see _examples/thoreinstein-rig's
// cmd/root.go / pkg/bootstrap), adapted from a CLI tool's config.toml to
// this service's debate-session defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/sreforge/debate-engine/internal/incident"
)

// EngineConfig is the top-level configuration for the service process;
// incident.SessionConfig remains the per-session snapshot captured at
// session start (spec.md §9: "no runtime mutation").
type EngineConfig struct {
	ListenAddr     string                 `mapstructure:"listen_addr"`
	DefaultSession incident.SessionConfig `mapstructure:"default_session"`
	Store          StoreConfig            `mapstructure:"store"`
	LLM            LLMConfig              `mapstructure:"llm"`
}

// StoreConfig selects and configures the SessionStore backend.
type StoreConfig struct {
	Backend  string `mapstructure:"backend"` // "memory" or "redis"
	RedisURL string `mapstructure:"redis_url"`
}

// LLMConfig selects the model backend the LLM Gateway calls through.
// APIKey is read from SREFORGE_LLM_APIKEY, which overrides an
// llm.apikey value in the config file.
type LLMConfig struct {
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"apikey"`
}

// Default returns the built-in configuration used when no file or
// environment override is present.
func Default() EngineConfig {
	return EngineConfig{
		ListenAddr:     ":8089",
		DefaultSession: incident.DefaultSessionConfig(),
		Store:          StoreConfig{Backend: "memory"},
		LLM:            LLMConfig{ModelID: "claude-3-5-sonnet-20240620"},
	}
}

// Load reads configuration from an optional file path, then SREFORGE_*
// environment variables, falling back to Default() for anything unset.
func Load(path string) (EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("SREFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.apikey")

	def := Default()
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("default_session.max_rounds", def.DefaultSession.MaxRounds)
	v.SetDefault("default_session.concurrency_limit", def.DefaultSession.ConcurrencyLimit)
	v.SetDefault("default_session.supervisor_mode", string(def.DefaultSession.SupervisorMode))
	v.SetDefault("default_session.evidence_source_kind_minimum", def.DefaultSession.EvidenceSourceKindMinimum)
	v.SetDefault("store.backend", def.Store.Backend)
	v.SetDefault("llm.model_id", def.LLM.ModelID)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	cfg := def
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.DefaultSession.PerPhaseTimeoutMs == nil {
		cfg.DefaultSession.PerPhaseTimeoutMs = def.DefaultSession.PerPhaseTimeoutMs
	}
	if cfg.DefaultSession.PerPhaseRetry == nil {
		cfg.DefaultSession.PerPhaseRetry = def.DefaultSession.PerPhaseRetry
	}
	if cfg.DefaultSession.ToolsEnabled == nil {
		cfg.DefaultSession.ToolsEnabled = def.DefaultSession.ToolsEnabled
	}
	if len(cfg.DefaultSession.BlockedConclusionPhrases) == 0 {
		cfg.DefaultSession.BlockedConclusionPhrases = def.DefaultSession.BlockedConclusionPhrases
	}

	if err := cfg.DefaultSession.Validate(); err != nil {
		return EngineConfig{}, err
	}

	return cfg, nil
}
