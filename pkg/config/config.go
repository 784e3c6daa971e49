// Package config loads runtime configuration: a JSON file layered over
// built-in defaults, then environment variable overrides (REVERIE_*).
// Capability profiles live in separate YAML files, see profile.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so scope lists can contain both "ops" and bare agent ids like 42.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Runtime   RuntimeConfig   `json:"runtime"`
	Providers ProvidersConfig `json:"providers"`
	Memory    MemoryConfig    `json:"memory"`
	Runner    RunnerConfig    `json:"runner"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	mu        sync.RWMutex
}

type RuntimeConfig struct {
	DataDir     string  `json:"data_dir" env:"REVERIE_RUNTIME_DATA_DIR"`
	Profile     string  `json:"profile" env:"REVERIE_RUNTIME_PROFILE"`
	ProfilesDir string  `json:"profiles_dir" env:"REVERIE_RUNTIME_PROFILES_DIR"`
	MaxTokens   int     `json:"max_tokens" env:"REVERIE_RUNTIME_MAX_TOKENS"`
	Temperature float64 `json:"temperature" env:"REVERIE_RUNTIME_TEMPERATURE"`
	PricingPath string  `json:"pricing_path" env:"REVERIE_RUNTIME_PRICING_PATH"`
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Anthropic  ProviderConfig `json:"anthropic"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
}

type MemoryConfig struct {
	VaultPath          string              `json:"vault_path" env:"REVERIE_MEMORY_VAULT_PATH"`
	Capacity           int                 `json:"capacity" env:"REVERIE_MEMORY_CAPACITY"`
	DuplicateThreshold float64             `json:"duplicate_threshold" env:"REVERIE_MEMORY_DUPLICATE_THRESHOLD"`
	OverlapThreshold   float64             `json:"overlap_threshold" env:"REVERIE_MEMORY_OVERLAP_THRESHOLD"`
	Scopes             FlexibleStringSlice `json:"scopes"`
	Embedder           string              `json:"embedder" env:"REVERIE_MEMORY_EMBEDDER"` // openai | mock
	EmbeddingModel     string              `json:"embedding_model" env:"REVERIE_MEMORY_EMBEDDING_MODEL"`
}

type RunnerConfig struct {
	MaxStepsPerTick  int `json:"max_steps_per_tick" env:"REVERIE_RUNNER_MAX_STEPS_PER_TICK"`
	ToolCallsPerTick int `json:"tool_calls_per_tick" env:"REVERIE_RUNNER_TOOL_CALLS_PER_TICK"`
	TaskInboxPerTick int `json:"task_inbox_per_tick" env:"REVERIE_RUNNER_TASK_INBOX_PER_TICK"`
	DefaultTicks     int `json:"default_ticks" env:"REVERIE_RUNNER_DEFAULT_TICKS"`
	WallClockSeconds int `json:"wall_clock_seconds" env:"REVERIE_RUNNER_WALL_CLOCK_SECONDS"`
}

type SchedulerConfig struct {
	Enabled         bool   `json:"enabled" env:"REVERIE_SCHEDULER_ENABLED"`
	IntervalMinutes int    `json:"interval_minutes" env:"REVERIE_SCHEDULER_INTERVAL_MINUTES"`
	Cron            string `json:"cron" env:"REVERIE_SCHEDULER_CRON"`
	MaxErrorStreak  int    `json:"max_error_streak" env:"REVERIE_SCHEDULER_MAX_ERROR_STREAK"`
}

type LoggingConfig struct {
	Level string `json:"level" env:"REVERIE_LOGGING_LEVEL"`
}

// Provider API keys get their env override here rather than via tags:
// each provider shares the ProviderConfig shape, and env/v11 cannot
// vary a tag per field instance.
func applyProviderEnv(cfg *Config) {
	if v := os.Getenv("REVERIE_PROVIDERS_OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("REVERIE_PROVIDERS_OPENROUTER_API_KEY"); v != "" {
		cfg.Providers.OpenRouter.APIKey = v
	}
	if v := os.Getenv("REVERIE_PROVIDERS_ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	// Conventional vendor variables work as a fallback.
	if cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Providers.OpenRouter.APIKey == "" {
		cfg.Providers.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			DataDir:     "~/.reverie",
			Profile:     "default",
			ProfilesDir: "profiles",
			MaxTokens:   4096,
			Temperature: 0.7,
			PricingPath: "pricing.yaml",
		},
		Memory: MemoryConfig{
			VaultPath:          "", // resolved under DataDir when empty
			Capacity:           600,
			DuplicateThreshold: 0.85,
			OverlapThreshold:   0.70,
			Scopes:             FlexibleStringSlice{"shared"},
			Embedder:           "openai",
			EmbeddingModel:     "text-embedding-3-small",
		},
		Runner: RunnerConfig{
			MaxStepsPerTick:  6,
			ToolCallsPerTick: 2,
			TaskInboxPerTick: 1,
			DefaultTicks:     3,
			WallClockSeconds: 300,
		},
		Scheduler: SchedulerConfig{
			Enabled:         false,
			IntervalMinutes: 30,
			MaxErrorStreak:  3,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			applyProviderEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	applyProviderEnv(cfg)

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Runtime.DataDir)
}

// VaultPath resolves the vault file, defaulting under the data dir.
func (c *Config) VaultPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Memory.VaultPath != "" {
		return expandHome(c.Memory.VaultPath)
	}
	return filepath.Join(expandHome(c.Runtime.DataDir), "vault.jsonl")
}

// BoundaryLogPath is where capability denials are recorded.
func (c *Config) BoundaryLogPath() string {
	return filepath.Join(c.DataDir(), "boundary_events.jsonl")
}

// TaskDBPath is the sqlite task inbox location.
func (c *Config) TaskDBPath() string {
	return filepath.Join(c.DataDir(), "tasks.db")
}

// OutboxPath is the operator inbox JSONL file.
func (c *Config) OutboxPath() string {
	return filepath.Join(c.DataDir(), "operator_outbox.jsonl")
}

// ProfilesDir resolves the profile directory; relative paths live
// under the data dir.
func (c *Config) ProfilesDir() string {
	c.mu.RLock()
	dir := c.Runtime.ProfilesDir
	c.mu.RUnlock()
	if dir == "" {
		dir = "profiles"
	}
	dir = expandHome(dir)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.DataDir(), dir)
	}
	return dir
}

// PricingPath resolves the pricing table; relative paths live under
// the data dir. Empty means no pricing table.
func (c *Config) PricingPath() string {
	c.mu.RLock()
	path := c.Runtime.PricingPath
	c.mu.RUnlock()
	if path == "" {
		return ""
	}
	path = expandHome(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.DataDir(), path)
	}
	return path
}

// ProviderSettings returns the configured key and base for a provider
// name.
func (c *Config) ProviderSettings(name string) (apiKey, apiBase string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch name {
	case "openai":
		return c.Providers.OpenAI.APIKey, c.Providers.OpenAI.APIBase
	case "openrouter":
		return c.Providers.OpenRouter.APIKey, c.Providers.OpenRouter.APIBase
	case "anthropic":
		return c.Providers.Anthropic.APIKey, c.Providers.Anthropic.APIBase
	default:
		return "", ""
	}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
