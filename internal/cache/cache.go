/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer with graceful fallback.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCredentialTTL bounds how long a directory entry may be served from
// cache. Invalidation events normally evict entries immediately; the TTL is
// the backstop when an event is lost.
const DefaultCredentialTTL = 30 * time.Second

// KeyCredential is the Redis key prefix for directory entries (+ public_id).
const KeyCredential = "heimdall:cache:credential:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CredentialTTL time.Duration

	// DisableOnError trips a circuit breaker on Redis errors instead of
	// failing requests.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		CredentialTTL:  DefaultCredentialTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback: when Redis is
// unreachable every operation degrades to a miss.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// CredentialTTL returns the configured entry lifetime.
func (c *Cache) CredentialTTL() time.Duration {
	if c.config.CredentialTTL > 0 {
		return c.config.CredentialTTL
	}
	return DefaultCredentialTTL
}

// Get retrieves a value and unmarshals it into dest. The bool reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.IsAvailable() {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
	}
}

// Delete evicts a key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if !c.IsAvailable() {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
	}
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}
