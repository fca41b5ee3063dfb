// Package config loads and validates the airwave.yaml configuration file.
// Scope strings configured here are parsed at load time; a malformed entry
// is a deployment misconfiguration that halts startup rather than degrading
// per request.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/scope"
)

// Config is the top-level airwave configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Auth      AuthConfig           `yaml:"auth"`
	Store     StoreConfig          `yaml:"store"`
	RateLimit RateLimitConfig      `yaml:"ratelimit"`
	Issuance  IssuanceConfig       `yaml:"issuance"`
	Roles     map[string]string    `yaml:"roles"`
	Tiers     map[string]TierLimit `yaml:"tiers"`
	Logging   LoggingConfig        `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
	IPRatePerMinute int      `yaml:"ip_rate_per_minute"`
}

// AuthConfig controls credential validation and issuance.
type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"`
	SessionCookie string `yaml:"session_cookie"`
	SessionTTL    string `yaml:"session_ttl"`
	GuestTTL      string `yaml:"guest_ttl"`
	TokenPrefix   string `yaml:"token_prefix"`
}

// StoreConfig selects the token store backend.
type StoreConfig struct {
	Driver  string `yaml:"driver"`   // sqlite | postgres
	DataDir string `yaml:"data_dir"` // sqlite only; empty = in-memory
	DSN     string `yaml:"dsn"`      // postgres only
}

// RateLimitConfig selects the shared counter backend and the outage policy.
type RateLimitConfig struct {
	Backend  string      `yaml:"backend"` // memory | redis
	FailOpen bool        `yaml:"fail_open"`
	Redis    RedisConfig `yaml:"redis"`
}

// RedisConfig holds connection parameters for the shared counter store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IssuanceConfig controls token-issuance policy.
type IssuanceConfig struct {
	MaxActiveTokens int   `yaml:"max_active_tokens"`
	CooldownSeconds int64 `yaml:"cooldown_seconds"`
}

// TierLimit is the YAML form of one tier→limit row. Zero requests means
// the tier is not charged.
type TierLimit struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the built-in configuration: in-memory SQLite, in-process
// counter store, fail-closed, default role and tier tables.
func Default() *Config {
	roles := make(map[string]string, len(model.DefaultRoleScopes))
	for role, scopes := range model.DefaultRoleScopes {
		roles[role] = scopes
	}
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			CORSOrigins:     []string{"*"},
			IPRatePerMinute: 300,
		},
		Auth: AuthConfig{
			SessionCookie: "airwave_session",
			SessionTTL:    "24h",
			GuestTTL:      "1h",
			TokenPrefix:   "awk_",
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		RateLimit: RateLimitConfig{
			Backend:  "memory",
			FailOpen: false,
		},
		Issuance: IssuanceConfig{
			MaxActiveTokens: 1,
			CooldownSeconds: 604800, // 7 days
		},
		Roles: roles,
		Tiers: map[string]TierLimit{
			string(model.TierBasic):     {Requests: 60, Window: "1m"},
			string(model.TierPro):       {Requests: 600, Window: "1m"},
			string(model.TierUnlimited): {Requests: 0},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
// An empty path returns validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every configured scope string, tier, and duration.
func (c *Config) Validate() error {
	for role, list := range c.Roles {
		if _, err := scope.ParseList(list); err != nil {
			return fmt.Errorf("roles.%s: %w", role, err)
		}
	}
	for tier, limit := range c.Tiers {
		if !model.ValidTier(model.Tier(tier)) {
			return fmt.Errorf("tiers.%s: unknown tier", tier)
		}
		if limit.Requests > 0 {
			if _, err := time.ParseDuration(limit.Window); err != nil {
				return fmt.Errorf("tiers.%s.window: %w", tier, err)
			}
		}
	}
	if _, err := time.ParseDuration(c.Auth.SessionTTL); err != nil {
		return fmt.Errorf("auth.session_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Auth.GuestTTL); err != nil {
		return fmt.Errorf("auth.guest_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("ratelimit.backend: unknown backend %q", c.RateLimit.Backend)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	if c.Issuance.MaxActiveTokens < 1 {
		return fmt.Errorf("issuance.max_active_tokens: must be >= 1")
	}
	if c.Issuance.CooldownSeconds < 0 {
		return fmt.Errorf("issuance.cooldown_seconds: must be >= 0")
	}
	return nil
}

// RoleTable builds the immutable role→scope table. Call after Validate.
func (c *Config) RoleTable() (*model.RoleTable, error) {
	return model.NewRoleTable(c.Roles)
}

// TierLimits builds the immutable tier→limit table. Call after Validate.
func (c *Config) TierLimits() map[model.Tier]model.TierLimit {
	limits := make(map[model.Tier]model.TierLimit, len(c.Tiers))
	for tier, limit := range c.Tiers {
		row := model.TierLimit{Requests: limit.Requests}
		if limit.Requests > 0 {
			row.Window, _ = time.ParseDuration(limit.Window)
		}
		limits[model.Tier(tier)] = row
	}
	return limits
}

// SessionTTLDuration returns the parsed session TTL. Call after Validate.
func (c *Config) SessionTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Auth.SessionTTL)
	return d
}

// GuestTTLDuration returns the parsed guest-token TTL. Call after Validate.
func (c *Config) GuestTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.Auth.GuestTTL)
	return d
}

// Cooldown returns the issuance cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Issuance.CooldownSeconds) * time.Second
}
