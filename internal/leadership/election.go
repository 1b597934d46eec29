/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single archiver across instances using a
// Redis lease, so scheduled audit exports run exactly once per fleet.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/telemetry"
)

const (
	defaultLeaseKey = "heimdall:leader:audit-archiver"

	// The leader must renew before the lease expires; followers poll
	// a little faster than the renewal cadence.
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
)

// Config configures the Redis lease election.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// LeaseKey is the Redis key holding the current leader's instance ID.
	LeaseKey string

	LeaseDuration   time.Duration
	RenewalInterval time.Duration

	// InstanceID identifies this process; a random ID is generated when
	// empty.
	InstanceID string
}

// Election campaigns for the archiver lease. IsLeader is safe to call
// from any goroutine.
type Election struct {
	client     *redis.Client
	logger     zerolog.Logger
	cfg        Config
	instanceID string

	mu       sync.RWMutex
	isLeader bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection connects to Redis and prepares a campaign. It does not
// start campaigning until Start is called.
func NewElection(cfg Config, logger zerolog.Logger) (*Election, error) {
	if cfg.LeaseKey == "" {
		cfg.LeaseKey = defaultLeaseKey
	}
	if cfg.LeaseDuration == 0 {
		cfg.LeaseDuration = defaultLeaseDuration
	}
	if cfg.RenewalInterval == 0 {
		cfg.RenewalInterval = defaultRenewalInterval
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	return &Election{
		client:     client,
		logger:     logger.With().Str("component", "leadership").Str("instance_id", cfg.InstanceID).Logger(),
		cfg:        cfg,
		instanceID: cfg.InstanceID,
		done:       make(chan struct{}),
	}, nil
}

// Start begins campaigning in the background.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.logger.Info().
		Str("lease_key", e.cfg.LeaseKey).
		Dur("lease_duration", e.cfg.LeaseDuration).
		Msg("starting leader election")

	go e.campaign(ctx)
}

// Stop halts the campaign, releases the lease if held, and closes the
// Redis connection.
func (e *Election) Stop() error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}

	if e.IsLeader() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.release(ctx); err != nil {
			e.logger.Error().Err(err).Msg("release leadership lease")
		}
	}

	return e.client.Close()
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// Leader returns the instance ID currently holding the lease, or empty
// when nobody does.
func (e *Election) Leader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.cfg.LeaseKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read leader lease: %w", err)
	}
	return id, nil
}

func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.RenewalInterval)
	defer ticker.Stop()

	e.attempt(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.attempt(ctx)
		}
	}
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquireOrRenew(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("leadership attempt failed")
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquireOrRenew takes the lease with SETNX, or refreshes its TTL when
// this instance already owns it.
func (e *Election) acquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.LeaseKey, e.instanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := e.client.Get(ctx, e.cfg.LeaseKey).Result()
	if err == redis.Nil {
		// Lease expired between SETNX and GET; the next tick retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lease holder: %w", err)
	}

	if holder != e.instanceID {
		return false, nil
	}
	if err := e.client.Expire(ctx, e.cfg.LeaseKey, e.cfg.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

// release deletes the lease only when this instance still owns it.
func (e *Election) release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := e.client.Eval(ctx, script, []string{e.cfg.LeaseKey}, e.instanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

func (e *Election) setLeader(held bool) {
	e.mu.Lock()
	changed := e.isLeader != held
	e.isLeader = held
	e.mu.Unlock()

	if !changed {
		return
	}
	if held {
		e.logger.Info().Msg("acquired archiver leadership")
		telemetry.LeaderStatus.WithLabelValues(e.instanceID).Set(1)
		telemetry.LeaderTransitionsTotal.WithLabelValues(e.instanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Msg("lost archiver leadership")
		telemetry.LeaderStatus.WithLabelValues(e.instanceID).Set(0)
		telemetry.LeaderTransitionsTotal.WithLabelValues(e.instanceID, "lost").Inc()
	}
}
