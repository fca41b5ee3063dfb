package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every round trip to the shared store so that a slow
// backend surfaces as StoreUnavailable instead of stalling the pipeline.
const opTimeout = 500 * time.Millisecond

// RedisStore is a counter store backed by a shared Redis instance, for
// horizontally scaled deployments where every process charges the same
// buckets. All mutations run as single atomic commands or scripts.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// chargeScript increments the fixed-window counter and arms the window TTL
// on first use. Counter value and remaining TTL come back in one round trip.
var chargeScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisConfig holds connection parameters for the shared store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Now      func() time.Time
}

// NewRedisStore connects to Redis. The connection is verified lazily; a
// down backend surfaces on first Charge as a store error.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, now: cfg.Now}, nil
}

// Charge implements Store.
func (r *RedisStore) Charge(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := chargeScript.Run(ctx, r.client, []string{key}, windowMillis).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("charge %q: %w", key, err)
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("unexpected redis charge response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("invalid redis counter response")
	}
	ttlMillis, _ := values[1].(int64)

	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// CheckCooldown implements Store. SET NX with the window as TTL records the
// action atomically; when the key already exists the remaining TTL is the
// wait the caller must observe.
func (r *RedisStore) CheckCooldown(ctx context.Context, key string, window time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set, err := r.client.SetNX(ctx, key, r.now().Unix(), window).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown %q: %w", key, err)
	}
	if set {
		return 0, nil
	}
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown ttl %q: %w", key, err)
	}
	if ttl <= 0 {
		// Key expired between SETNX and PTTL; treat as open.
		return 0, nil
	}
	return ttl, nil
}

// Close implements Store.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
