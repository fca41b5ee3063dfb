package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is a process-local counter store. It implements the same
// fixed-window semantics as the Redis backend and is the default for
// single-node deployments and tests.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	buckets   map[string]*memoryBucket
	cooldowns map[string]time.Time
	maxKeys   int
}

type memoryBucket struct {
	count     int
	windowEnd time.Time
}

// MemoryConfig tunes a MemoryStore. Now overrides the clock for tests;
// MaxKeys bounds memory under key churn.
type MemoryConfig struct {
	Now     func() time.Time
	MaxKeys int
}

// NewMemoryStore creates a MemoryStore with the given config.
func NewMemoryStore(cfg MemoryConfig) *MemoryStore {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 10000
	}
	return &MemoryStore{
		now:       cfg.Now,
		buckets:   make(map[string]*memoryBucket),
		cooldowns: make(map[string]time.Time),
		maxKeys:   cfg.MaxKeys,
	}
}

// Charge implements Store.
func (m *MemoryStore) Charge(_ context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.buckets[key]
	if ok && now.After(bucket.windowEnd) {
		delete(m.buckets, key)
		ok = false
	}
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.gc(now)
		}
		if len(m.buckets) >= m.maxKeys {
			return Decision{}, errors.New("rate limiter capacity exceeded")
		}
		bucket = &memoryBucket{windowEnd: now.Add(window)}
		m.buckets[key] = bucket
	}

	if bucket.count < limit {
		bucket.count++
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit - bucket.count,
			ResetAt:   bucket.windowEnd,
		}, nil
	}

	return Decision{
		Allowed:   false,
		Limit:     limit,
		Remaining: 0,
		ResetAt:   bucket.windowEnd,
	}, nil
}

// CheckCooldown implements Store.
func (m *MemoryStore) CheckCooldown(_ context.Context, key string, window time.Duration) (time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.cooldowns[key]; ok {
		elapsed := now.Sub(last)
		if elapsed < window {
			return window - elapsed, nil
		}
	}
	m.cooldowns[key] = now
	return 0, nil
}

// Close implements Store. The memory backend holds no external resources.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) gc(now time.Time) {
	for key, bucket := range m.buckets {
		if now.After(bucket.windowEnd) {
			delete(m.buckets, key)
		}
	}
}
