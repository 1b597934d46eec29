/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/cache"
	"github.com/friendsincode/heimdall_gate/internal/events"
	"github.com/friendsincode/heimdall_gate/internal/models"
)

// Cached decorates a directory with a short-TTL Redis cache on the hot
// lookup path. Rotation publishes invalidation events so a revoked
// credential never outlives the commit by more than the event delivery;
// the TTL is the backstop.
type Cached struct {
	inner  auth.Directory
	cache  *cache.Cache
	bus    events.PubSub
	logger zerolog.Logger
}

// NewCached wraps inner with the cache and subscribes to invalidation
// events on the bus.
func NewCached(inner auth.Directory, c *cache.Cache, bus events.PubSub, logger zerolog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "directory-cache").Logger(),
	}
}

// cacheEntry is the serialized form of a directory entry. The credential
// model hides SecretHash and the preloaded associations from its JSON
// representation, so it cannot round-trip through the cache directly; the
// entry spells out every field authentication reads.
type cacheEntry struct {
	ID            string                   `json:"id"`
	ApplicationID string                   `json:"application_id"`
	PublicID      string                   `json:"public_id"`
	Prefix        string                   `json:"prefix"`
	SecretHash    string                   `json:"secret_hash"`
	LastFour      string                   `json:"last_four"`
	IsActive      bool                     `json:"is_active"`
	RevokedAt     *time.Time               `json:"revoked_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	AppName       string                   `json:"app_name"`
	AppStatus     models.ApplicationStatus `json:"app_status"`
	AccountID     string                   `json:"account_id"`
	AccountName   string                   `json:"account_name"`
}

func newCacheEntry(cred *models.Credential) cacheEntry {
	return cacheEntry{
		ID:            cred.ID,
		ApplicationID: cred.ApplicationID,
		PublicID:      cred.PublicID,
		Prefix:        cred.Prefix,
		SecretHash:    cred.SecretHash,
		LastFour:      cred.LastFour,
		IsActive:      cred.IsActive,
		RevokedAt:     cred.RevokedAt,
		CreatedAt:     cred.CreatedAt,
		AppName:       cred.Application.Name,
		AppStatus:     cred.Application.Status,
		AccountID:     cred.Application.AccountID,
		AccountName:   cred.Application.Account.Name,
	}
}

// credential rebuilds the model with its associations populated.
func (e *cacheEntry) credential() *models.Credential {
	return &models.Credential{
		ID:            e.ID,
		ApplicationID: e.ApplicationID,
		PublicID:      e.PublicID,
		Prefix:        e.Prefix,
		SecretHash:    e.SecretHash,
		LastFour:      e.LastFour,
		IsActive:      e.IsActive,
		RevokedAt:     e.RevokedAt,
		CreatedAt:     e.CreatedAt,
		Application: models.Application{
			ID:        e.ApplicationID,
			AccountID: e.AccountID,
			Name:      e.AppName,
			Status:    e.AppStatus,
			Account: models.Account{
				ID:   e.AccountID,
				Name: e.AccountName,
			},
		},
	}
}

// FindByPublicID serves from cache when possible. Misses and lookup failures
// fall through to the inner directory; only successful resolutions are
// cached, so unknown public ids are re-checked every time.
func (c *Cached) FindByPublicID(ctx context.Context, publicID string) (*models.Credential, error) {
	key := cache.KeyCredential + publicID

	var entry cacheEntry
	if hit, _ := c.cache.Get(ctx, key, &entry); hit {
		return entry.credential(), nil
	}

	resolved, err := c.inner.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, key, newCacheEntry(resolved), c.cache.CredentialTTL())
	return resolved, nil
}

// Start consumes invalidation events until ctx is cancelled.
func (c *Cached) Start(ctx context.Context) {
	sub := c.bus.Subscribe(events.EventDirectoryInvalidate)
	defer c.bus.Unsubscribe(events.EventDirectoryInvalidate, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			publicID, _ := payload["public_id"].(string)
			if publicID == "" {
				continue
			}
			c.cache.Delete(ctx, cache.KeyCredential+publicID)
			c.logger.Debug().Str("public_id", publicID).Msg("directory entry invalidated")
		}
	}
}
