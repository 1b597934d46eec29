/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation atomically replaces an application's credential.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/directory"
	"github.com/friendsincode/heimdall_gate/internal/events"
	"github.com/friendsincode/heimdall_gate/internal/models"
	"github.com/friendsincode/heimdall_gate/internal/secrets"
	"github.com/friendsincode/heimdall_gate/internal/telemetry"
	"github.com/friendsincode/heimdall_gate/internal/token"
)

// ErrRotationConflict is returned when a concurrent rotation already revoked
// the caller's credential. Exactly one of two racing rotations wins.
var ErrRotationConflict = errors.New("credential was rotated concurrently")

// ErrNoIdentity indicates a contract violation: rotation was invoked without
// a resolved tenant identity. This is an upstream defect in context
// propagation, not a caller input error.
var ErrNoIdentity = errors.New("rotation requires a resolved tenant identity")

// Result is returned to the caller exactly once. PlaintextToken is never
// persisted or logged; only the hash and last four characters are retained.
type Result struct {
	PlaintextToken string    `json:"api_key"`
	PublicID       string    `json:"key_id"`
	LastFour       string    `json:"last_four"`
	CreatedAt      time.Time `json:"created_at"`
}

// Coordinator mints new credentials and retires old ones as one atomic unit.
type Coordinator struct {
	store    *directory.Store
	auditSvc *audit.Service
	bus      events.PubSub
	prefix   string
	logger   zerolog.Logger
}

// NewCoordinator creates a rotation coordinator. prefix selects the token
// environment label (sk_live or sk_test).
func NewCoordinator(store *directory.Store, auditSvc *audit.Service, bus events.PubSub, prefix string, logger zerolog.Logger) *Coordinator {
	if prefix == "" {
		prefix = token.PrefixLive
	}
	return &Coordinator{
		store:    store,
		auditSvc: auditSvc,
		bus:      bus,
		prefix:   prefix,
		logger:   logger.With().Str("component", "rotation").Logger(),
	}
}

// Rotate generates a fresh credential for the identity's application and,
// when revokeOld is set and the identity carries a credential id, retires
// the old one. Revocation, insertion, and the audit row commit together or
// not at all: a failure partway leaves the store untouched.
func (c *Coordinator) Rotate(ctx context.Context, identity auth.Identity, revokeOld bool) (*Result, error) {
	if identity.AccountID == "" || identity.ApplicationID == "" {
		return nil, ErrNoIdentity
	}

	publicID, err := token.GeneratePublicID()
	if err != nil {
		return nil, fmt.Errorf("generate public id: %w", err)
	}
	secret, err := token.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	// Hash before any persistence write.
	secretHash, err := secrets.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	now := time.Now()
	newCred := &models.Credential{
		ID:            uuid.NewString(),
		ApplicationID: identity.ApplicationID,
		PublicID:      publicID,
		Prefix:        c.prefix,
		SecretHash:    secretHash,
		LastFour:      lastFour(secret),
		IsActive:      true,
		CreatedAt:     now,
	}

	revoking := revokeOld && identity.CredentialID != ""
	var oldPublicID string

	err = c.store.Transaction(ctx, func(tx *gorm.DB) error {
		if revoking {
			var old models.Credential
			if err := tx.WithContext(ctx).Select("public_id").First(&old, "id = ?", identity.CredentialID).Error; err != nil {
				return fmt.Errorf("load credential %s: %w", identity.CredentialID, err)
			}
			oldPublicID = old.PublicID

			if err := c.store.Deactivate(ctx, tx, identity.CredentialID, now); err != nil {
				return err
			}
		}

		if err := c.store.Create(ctx, tx, newCred); err != nil {
			return err
		}

		return c.auditSvc.WithTx(tx).Append(ctx, identity.ApplicationID, newCred.ID, models.AuditCredentialRotated, map[string]any{
			"public_id":        publicID,
			"revoked_previous": revoking,
		})
	})
	if err != nil {
		if errors.Is(err, directory.ErrAlreadyRevoked) {
			telemetry.RotationsTotal.WithLabelValues("conflict").Inc()
			c.logger.Warn().
				Str("credential_id", identity.CredentialID).
				Msg("concurrent rotation lost the race")
			return nil, ErrRotationConflict
		}
		telemetry.RotationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("rotation transaction: %w", err)
	}

	telemetry.RotationsTotal.WithLabelValues("committed").Inc()
	c.logger.Info().
		Str("application_id", identity.ApplicationID).
		Str("public_id", publicID).
		Bool("revoked_previous", revoking).
		Msg("credential rotated")

	// Invalidate after commit only; publishing mid-transaction could evict
	// a cache entry and then roll back, resurrecting the old credential.
	if c.bus != nil {
		if oldPublicID != "" {
			c.bus.Publish(events.EventCredentialRevoked, events.Payload{
				"public_id":     oldPublicID,
				"credential_id": identity.CredentialID,
			})
			c.bus.Publish(events.EventDirectoryInvalidate, events.Payload{"public_id": oldPublicID})
		}
		c.bus.Publish(events.EventCredentialRotated, events.Payload{
			"public_id":      publicID,
			"credential_id":  newCred.ID,
			"application_id": identity.ApplicationID,
		})
	}

	return &Result{
		PlaintextToken: token.Format(c.prefix, publicID, secret),
		PublicID:       publicID,
		LastFour:       newCred.LastFour,
		CreatedAt:      now,
	}, nil
}

// Provision mints the first credential for an application outside any prior
// identity, used by operator provisioning. It reuses Rotate with a synthetic
// identity carrying no credential id, so nothing is revoked.
func (c *Coordinator) Provision(ctx context.Context, accountID, applicationID string) (*Result, error) {
	return c.Rotate(ctx, auth.Identity{AccountID: accountID, ApplicationID: applicationID}, false)
}

func lastFour(secret string) string {
	if len(secret) < 4 {
		return secret
	}
	return secret[len(secret)-4:]
}
