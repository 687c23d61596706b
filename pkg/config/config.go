package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts a single JSON string
// or JSON numbers, so allow_origins can be "*" or ["https://a", "https://b"].
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = FlexibleStringSlice{single}
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
	Agents      AgentsConfig      `json:"agents"`
	Providers   ProvidersConfig   `json:"providers"`
	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Compression CompressionConfig `json:"compression"`
	Persona     PersonaConfig     `json:"persona"`
	mu          sync.RWMutex
}

type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

type AgentDefaults struct {
	Workspace   string  `json:"workspace" env:"COWCH_AGENTS_DEFAULTS_WORKSPACE"`
	Provider    string  `json:"provider" env:"COWCH_AGENTS_DEFAULTS_PROVIDER"`
	Model       string  `json:"model" env:"COWCH_AGENTS_DEFAULTS_MODEL"`
	MaxTokens   int     `json:"max_tokens" env:"COWCH_AGENTS_DEFAULTS_MAX_TOKENS"`
	Temperature float64 `json:"temperature" env:"COWCH_AGENTS_DEFAULTS_TEMPERATURE"`
}

type ProvidersConfig struct {
	OpenRouter     ProviderConfig `json:"openrouter" envPrefix:"COWCH_PROVIDERS_OPENROUTER_"`
	OpenAI         ProviderConfig `json:"openai" envPrefix:"COWCH_PROVIDERS_OPENAI_"`
	Anthropic      ProviderConfig `json:"anthropic" envPrefix:"COWCH_PROVIDERS_ANTHROPIC_"`
	TimeoutSeconds int            `json:"timeout_seconds" env:"COWCH_PROVIDERS_TIMEOUT_SECONDS"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base" env:"API_BASE"`
	Proxy   string `json:"proxy,omitempty" env:"PROXY"`
}

type ServerConfig struct {
	Host           string              `json:"host" env:"COWCH_SERVER_HOST"`
	Port           int                 `json:"port" env:"COWCH_SERVER_PORT"`
	Mode           string              `json:"mode" env:"COWCH_SERVER_MODE"`
	RateLimitRPS   float64             `json:"rate_limit_rps" env:"COWCH_SERVER_RATE_LIMIT_RPS"`
	RateLimitBurst int                 `json:"rate_limit_burst" env:"COWCH_SERVER_RATE_LIMIT_BURST"`
	AllowOrigins   FlexibleStringSlice `json:"allow_origins" env:"COWCH_SERVER_ALLOW_ORIGINS"`
}

type StorageConfig struct {
	Backend       string `json:"backend" env:"COWCH_STORAGE_BACKEND"` // sqlite | redis | memory
	SQLitePath    string `json:"sqlite_path" env:"COWCH_STORAGE_SQLITE_PATH"`
	RedisAddr     string `json:"redis_addr" env:"COWCH_STORAGE_REDIS_ADDR"`
	RedisPassword string `json:"redis_password" env:"COWCH_STORAGE_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" env:"COWCH_STORAGE_REDIS_DB"`
	KeyPrefix     string `json:"key_prefix" env:"COWCH_STORAGE_KEY_PREFIX"`
}

type CompressionConfig struct {
	Threshold       int    `json:"threshold" env:"COWCH_COMPRESSION_THRESHOLD"`
	Window          int    `json:"window" env:"COWCH_COMPRESSION_WINDOW"`
	HistoryLimit    int    `json:"history_limit" env:"COWCH_COMPRESSION_HISTORY_LIMIT"`
	MaintenanceCron string `json:"maintenance_cron" env:"COWCH_COMPRESSION_MAINTENANCE_CRON"`
	Summarizer      string `json:"summarizer" env:"COWCH_COMPRESSION_SUMMARIZER"` // provider | http
	SummarizerURL   string `json:"summarizer_url" env:"COWCH_COMPRESSION_SUMMARIZER_URL"`
}

type PersonaConfig struct {
	FrameworkURL    string `json:"framework_url" env:"COWCH_PERSONA_FRAMEWORK_URL"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes" env:"COWCH_PERSONA_CACHE_TTL_MINUTES"`
}

func DefaultConfig() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Workspace:   "~/.cowch/workspace",
				Provider:    "anthropic",
				Model:       "claude-sonnet-4-20250514",
				MaxTokens:   500,
				Temperature: 0.7,
			},
		},
		Providers: ProvidersConfig{
			TimeoutSeconds: 120,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           18791,
			Mode:           "release",
			RateLimitRPS:   2,
			RateLimitBurst: 10,
			AllowOrigins:   FlexibleStringSlice{"*"},
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			RedisAddr: "localhost:6379",
			KeyPrefix: "cowch",
		},
		Compression: CompressionConfig{
			Threshold:       8,
			Window:          8,
			HistoryLimit:    100,
			MaintenanceCron: "*/10 * * * *",
			Summarizer:      "provider",
		},
		Persona: PersonaConfig{
			FrameworkURL:    "https://theracowch.com/imagine-framework-prompts-enhanced.txt",
			CacheTTLMinutes: 120,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

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

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Agents.Defaults.Workspace)
}

// SQLitePath resolves the profile database location, defaulting to
// <workspace>/state/cowch.db.
func (c *Config) SQLitePath() string {
	c.mu.RLock()
	path := strings.TrimSpace(c.Storage.SQLitePath)
	c.mu.RUnlock()
	if path != "" {
		return expandHome(path)
	}
	return filepath.Join(c.WorkspacePath(), "state", "cowch.db")
}

func (c *Config) ListenAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
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
