/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ratelimit enforces fixed-window request quotas keyed by caller
// identity.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CounterStore increments a windowed counter and reports the running count.
// The first increment of a window arms its expiry.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisStore counts in Redis so the quota holds across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed counter store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr atomically increments the bucket and arms the window TTL on first use.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// windowCounter tracks the count and reset time for one bucket.
type windowCounter struct {
	count     int64
	resetTime time.Time
}

// MemoryStore is an in-process counter store. It backs tests and serves as
// the fallback when Redis is unreachable: degraded per-instance limiting
// beats failing every request.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*windowCounter
}

// NewMemoryStore creates an in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*windowCounter)}
}

// Incr increments the bucket, resetting it when its window has elapsed.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	counter, ok := s.buckets[key]
	if !ok || now.After(counter.resetTime) {
		s.buckets[key] = &windowCounter{count: 1, resetTime: now.Add(window)}
		return 1, nil
	}

	counter.count++
	return counter.count, nil
}

// Cleanup removes expired buckets to bound memory.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, counter := range s.buckets {
		if now.After(counter.resetTime) {
			delete(s.buckets, key)
		}
	}
}

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter enforces a fixed-window quota per bucket key, with per-route
// policy overrides.
type Limiter struct {
	store    CounterStore
	fallback *MemoryStore
	quota    int64
	window   time.Duration
	policies map[string]Policy
	logger   zerolog.Logger
}

// NewLimiter creates a limiter with the default quota per window. Route
// policies override the default for matching route patterns.
func NewLimiter(store CounterStore, quota int, window time.Duration, policies []Policy, logger zerolog.Logger) *Limiter {
	byRoute := make(map[string]Policy, len(policies))
	for _, p := range policies {
		byRoute[p.Route] = p
	}
	return &Limiter{
		store:    store,
		fallback: NewMemoryStore(),
		quota:    int64(quota),
		window:   window,
		policies: byRoute,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow counts one request against the bucket and reports whether it fits
// the quota. Exceeding the quota has no side effect beyond the counter; it
// is a transient, retryable condition.
func (l *Limiter) Allow(ctx context.Context, bucketKey, route string) Decision {
	quota, window := l.quota, l.window
	if p, ok := l.policies[route]; ok {
		quota = int64(p.Quota)
		window = p.Window()
	}

	count, err := l.store.Incr(ctx, "heimdall:ratelimit:"+bucketKey, window)
	if err != nil {
		l.logger.Warn().Err(err).Msg("counter store unavailable, using in-memory fallback")
		count, _ = l.fallback.Incr(ctx, bucketKey, window)
	}

	if count > quota {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: window}
	}
	return Decision{Allowed: true, Remaining: quota - count}
}

// Sweep drops expired in-memory buckets. Called periodically; Redis buckets
// expire on their own.
func (l *Limiter) Sweep() {
	l.fallback.Cleanup()
	if mem, ok := l.store.(*MemoryStore); ok {
		mem.Cleanup()
	}
}
