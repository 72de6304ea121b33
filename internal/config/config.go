package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/agency-studio/internal/invoker"
	"github.com/nidhogg/agency-studio/internal/provider"
	"github.com/nidhogg/agency-studio/internal/tier"
)

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig                       `json:"server"`
	Providers    []ProviderConfig                   `json:"providers"`
	Database     DatabaseConfig                     `json:"database"`
	Notify       NotifyConfig                       `json:"notify"`
	Orchestrator OrchestratorConfig                 `json:"orchestrator"`
	Tiers        map[tier.Tier]provider.ModelConfig `json:"tiers,omitempty"`
	ImageTiers   map[tier.Tier]provider.ModelConfig `json:"image_tiers,omitempty"`
}

type ServerConfig struct {
	Port          int    `json:"port"`
	LogLevel      string `json:"log_level"`
	MigrationsDir string `json:"migrations_dir"`
}

type ProviderConfig struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Name           string            `json:"name"`
	Endpoint       string            `json:"endpoint"`
	APIKey         string            `json:"api_key"`
	Models         []string          `json:"models,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Default        bool              `json:"default,omitempty"`
}

// Provider converts the entry to a provider configuration.
func (p ProviderConfig) Provider() provider.ProviderConfig {
	return provider.ProviderConfig{
		ID:       p.ID,
		Type:     p.Type,
		Name:     p.Name,
		Endpoint: p.Endpoint,
		APIKey:   p.APIKey,
		Models:   p.Models,
		Extra:    p.Extra,
		Timeout:  time.Duration(p.TimeoutSeconds) * time.Second,
	}
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type NotifyConfig struct {
	Slack   ChannelConfig `json:"slack"`
	Discord ChannelConfig `json:"discord"`
}

type ChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type OrchestratorConfig struct {
	PoolSize          int                    `json:"pool_size"`
	MaxRuns           int                    `json:"max_runs"`
	MaxAttempts       int                    `json:"max_attempts"`
	BackoffMS         int                    `json:"backoff_ms"`
	FreshnessTTLHours int                    `json:"freshness_ttl_hours"`
	DefaultQuality    tier.Quality           `json:"default_quality"`
	Downgrade         provider.ModelConfig   `json:"downgrade"`
	ImageDowngrade    provider.ModelConfig   `json:"image_downgrade"`
	Alternates        []provider.ModelConfig `json:"downgrade_alternates,omitempty"`
	ImageAlternates   []provider.ModelConfig `json:"image_downgrade_alternates,omitempty"`
}

// RetryPolicy returns the invoker policy described by the section.
func (o OrchestratorConfig) RetryPolicy() invoker.RetryPolicy {
	return invoker.RetryPolicy{
		MaxAttempts:     o.MaxAttempts,
		Backoff:         time.Duration(o.BackoffMS) * time.Millisecond,
		Downgrade:       o.Downgrade,
		ImageDowngrade:  o.ImageDowngrade,
		Alternates:      o.Alternates,
		ImageAlternates: o.ImageAlternates,
	}
}

// FreshnessTTL is the age below which stored project context is reused.
func (o OrchestratorConfig) FreshnessTTL() time.Duration {
	return time.Duration(o.FreshnessTTLHours) * time.Hour
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable references
// and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func expandEnv(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})
}

func (c *Config) applyDefaults() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.MigrationsDir == "" {
		c.Server.MigrationsDir = "migrations"
	}

	o := &c.Orchestrator
	if o.PoolSize <= 0 {
		o.PoolSize = 10
	}
	if o.MaxRuns <= 0 {
		o.MaxRuns = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffMS <= 0 {
		o.BackoffMS = 2000
	}
	if o.FreshnessTTLHours <= 0 {
		o.FreshnessTTLHours = 24
	}
	o.DefaultQuality = tier.ParseQuality(string(o.DefaultQuality))

	for t := range c.Tiers {
		if !t.Valid() {
			return fmt.Errorf("tiers: unknown tier %q", t)
		}
	}
	for t := range c.ImageTiers {
		if !t.Valid() {
			return fmt.Errorf("image_tiers: unknown tier %q", t)
		}
	}
	return nil
}

// TierConfig returns the configured tier tables.
func (c *Config) TierConfig() tier.Config {
	return tier.Config{Text: c.Tiers, Image: c.ImageTiers}
}
