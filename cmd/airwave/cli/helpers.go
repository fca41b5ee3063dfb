package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/airwavehq/airwave/internal/config"
	"github.com/airwavehq/airwave/internal/model"
	"github.com/airwavehq/airwave/internal/ratelimit"
	"github.com/airwavehq/airwave/internal/service"
	"github.com/airwavehq/airwave/internal/store"
)

// devSessionSecret is the fallback HMAC key when none is configured.
// Sessions minted with it are only good for local development.
const devSessionSecret = "airwave-dev-secret-change-me"

// loadConfig reads the YAML config from --config (or the default search
// path) and applies environment overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if used := viper.ConfigFileUsed(); used != "" {
			path = used
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("auth.session_secret"); secret != "" {
		cfg.Auth.SessionSecret = secret
	}
	return cfg, nil
}

// sessionSecret returns the configured HMAC key, falling back to the
// development secret with a warning on stderr.
func sessionSecret(cfg *config.Config) string {
	if cfg.Auth.SessionSecret != "" {
		return cfg.Auth.SessionSecret
	}
	fmt.Fprintln(os.Stderr, "warning: auth.session_secret not set, using development secret")
	return devSessionSecret
}

// openStore connects the token store selected by the config.
func openStore(cfg *config.Config) (*store.Store, error) {
	switch cfg.Store.Driver {
	case store.DriverSQLite:
		return store.Open(store.DriverSQLite, cfg.Store.DataDir)
	case store.DriverPostgres:
		return store.Open(store.DriverPostgres, cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// buildGate constructs the rate-limit gate over the configured backend.
func buildGate(cfg *config.Config, logger *slog.Logger) (*ratelimit.Gate, error) {
	var backend ratelimit.Store
	switch cfg.RateLimit.Backend {
	case "redis":
		rs, err := ratelimit.NewRedisStore(ratelimit.RedisConfig{
			Addr:     cfg.RateLimit.Redis.Addr,
			Password: cfg.RateLimit.Redis.Password,
			DB:       cfg.RateLimit.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		backend = rs
	case "memory", "":
		backend = ratelimit.NewMemoryStore(ratelimit.MemoryConfig{})
	default:
		return nil, fmt.Errorf("unknown ratelimit backend %q", cfg.RateLimit.Backend)
	}
	return ratelimit.NewGate(backend, cfg.RateLimit.FailOpen, logger), nil
}

// buildAuthService wires the credential resolver from the config.
func buildAuthService(cfg *config.Config, st *store.Store) (*service.AuthService, error) {
	roles, err := cfg.RoleTable()
	if err != nil {
		return nil, fmt.Errorf("build role table: %w", err)
	}
	return service.NewAuthService(st, roles, service.AuthConfig{
		SessionSecret: sessionSecret(cfg),
		SessionCookie: cfg.Auth.SessionCookie,
		SessionTTL:    cfg.SessionTTLDuration(),
		GuestTTL:      cfg.GuestTTLDuration(),
	}), nil
}

// buildIssuer wires the token issuer from the config.
func buildIssuer(cfg *config.Config, st *store.Store, gate *ratelimit.Gate) *service.Issuer {
	return service.NewIssuer(st, gate, service.IssuerConfig{
		MaxActiveTokens: cfg.Issuance.MaxActiveTokens,
		Cooldown:        cfg.Cooldown(),
		TokenPrefix:     cfg.Auth.TokenPrefix,
	})
}

// newLogger builds the slog logger described by the logging config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// parseTier validates a tier name from a CLI flag.
func parseTier(name string) (model.Tier, error) {
	tier := model.Tier(name)
	if !model.ValidTier(tier) {
		return "", fmt.Errorf("unknown tier %q (want basic, pro, or unlimited)", name)
	}
	return tier, nil
}
