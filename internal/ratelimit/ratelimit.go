// Package ratelimit implements fixed-window request counting and action
// cooldowns against a shared counter store. The store may be process-local
// (memory) or shared across instances (Redis); either way every mutation is
// an atomic check-and-increment, never read-then-write.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrStoreUnavailable is returned when the counter backend cannot be
// reached within its timeout. The Gate resolves it into a policy decision.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Decision is the outcome of charging one unit against a bucket.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store is the counter backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Charge atomically increments the fixed-window bucket for key and
	// reports whether the request is within limit. The unit is consumed
	// whether or not later pipeline stages pass ("charge-first").
	// A limit <= 0 disables charging and always allows.
	Charge(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)

	// CheckCooldown atomically records "now" as the last occurrence of the
	// keyed action unless a previous occurrence is still within the window.
	// Returns zero when the action may proceed, or the remaining wait.
	CheckCooldown(ctx context.Context, key string, window time.Duration) (time.Duration, error)

	// Close releases backend resources.
	Close() error
}

// Gate wraps a Store with the fail-open/fail-closed policy for backend
// outages. Default is fail-closed: an unreachable store denies the request.
type Gate struct {
	store    Store
	failOpen bool
	logger   *slog.Logger
}

// NewGate creates a Gate. A nil logger discards the operational alerts
// emitted on store failures.
func NewGate(store Store, failOpen bool, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{store: store, failOpen: failOpen, logger: logger}
}

// Charge charges one unit and applies the outage policy. On store failure
// it returns ErrStoreUnavailable together with the policy's decision:
// allowed under fail-open, denied under fail-closed.
func (g *Gate) Charge(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	dec, err := g.store.Charge(ctx, key, limit, window)
	if err != nil {
		g.logger.Error("rate limit store unreachable", "key", key, "fail_open", g.failOpen, "error", err)
		if g.failOpen {
			return Decision{Allowed: true, Limit: limit, Remaining: 0}, nil
		}
		return Decision{Allowed: false, Limit: limit}, ErrStoreUnavailable
	}
	return dec, nil
}

// CheckCooldown checks and records an action cooldown under the same
// outage policy as Charge.
func (g *Gate) CheckCooldown(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	retryAfter, err := g.store.CheckCooldown(ctx, key, window)
	if err != nil {
		g.logger.Error("cooldown store unreachable", "key", key, "fail_open", g.failOpen, "error", err)
		if g.failOpen {
			return 0, nil
		}
		return 0, ErrStoreUnavailable
	}
	return retryAfter, nil
}

// Close closes the underlying store.
func (g *Gate) Close() error {
	return g.store.Close()
}
