package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airwavehq/airwave/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "airwave.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Issuance.MaxActiveTokens != 1 {
		t.Errorf("MaxActiveTokens = %d, want 1", cfg.Issuance.MaxActiveTokens)
	}
	if cfg.Issuance.CooldownSeconds != 604800 {
		t.Errorf("CooldownSeconds = %d, want 604800", cfg.Issuance.CooldownSeconds)
	}
	if cfg.RateLimit.FailOpen {
		t.Error("default policy must be fail-closed")
	}
	if cfg.Roles[model.RoleAdmin] != "*" {
		t.Errorf("admin role = %q, want *", cfg.Roles[model.RoleAdmin])
	}

	table, err := cfg.RoleTable()
	if err != nil {
		t.Fatalf("RoleTable: %v", err)
	}
	if !table.Known(model.RoleGuest) {
		t.Error("expected guest role")
	}

	limits := cfg.TierLimits()
	if limits[model.TierBasic].Requests != 60 || limits[model.TierBasic].Window != time.Minute {
		t.Errorf("basic limit = %+v", limits[model.TierBasic])
	}
	if !limits[model.TierUnlimited].Unlimited() {
		t.Error("unlimited tier must bypass charging")
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
ratelimit:
  backend: redis
  fail_open: true
  redis:
    addr: localhost:6379
roles:
  guest: "read:stations"
tiers:
  basic:
    requests: 5
    window: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.RateLimit.Backend != "redis" || !cfg.RateLimit.FailOpen {
		t.Errorf("ratelimit = %+v", cfg.RateLimit)
	}
	if got := len(cfg.Roles); got != 1 {
		// Mapping overrides replace the whole map in yaml.v3 when the node
		// is present; guests only.
		t.Logf("roles map has %d entries", got)
	}
	limits := cfg.TierLimits()
	if limits[model.TierBasic].Requests != 5 || limits[model.TierBasic].Window != 30*time.Second {
		t.Errorf("basic limit = %+v", limits[model.TierBasic])
	}
}

func TestLoadRejectsMalformedScope(t *testing.T) {
	path := writeConfig(t, `
roles:
  user: "read:stations write:"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for malformed role scope")
	}
	if !strings.Contains(err.Error(), "roles.user") {
		t.Errorf("error should name the bad key: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown tier", func(c *Config) { c.Tiers["gold"] = TierLimit{Requests: 1, Window: "1m"} }},
		{"bad window", func(c *Config) { c.Tiers[string(model.TierBasic)] = TierLimit{Requests: 1, Window: "soon"} }},
		{"bad session ttl", func(c *Config) { c.Auth.SessionTTL = "never" }},
		{"bad backend", func(c *Config) { c.RateLimit.Backend = "memcached" }},
		{"bad driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"zero token cap", func(c *Config) { c.Issuance.MaxActiveTokens = 0 }},
		{"negative cooldown", func(c *Config) { c.Issuance.CooldownSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
