/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/models"
	"github.com/friendsincode/heimdall_gate/internal/secrets"
	"github.com/friendsincode/heimdall_gate/internal/token"
)

// ErrUnauthorized is the single externally visible authentication failure.
// The internal cause (bad format, unknown credential, revoked credential,
// inactive application, secret mismatch) is logged but never surfaced, so a
// caller cannot enumerate which check failed.
var ErrUnauthorized = errors.New("unauthorized")

// ErrCredentialNotFound is returned by Directory implementations when no
// credential exists for a public id.
var ErrCredentialNotFound = errors.New("credential not found")

// Directory resolves a credential by its public id with the owning
// application and account preloaded.
type Directory interface {
	FindByPublicID(ctx context.Context, publicID string) (*models.Credential, error)
}

// Authenticator turns a raw bearer token into a verified tenant identity.
// It is a pure read path: no credential metadata is mutated on success or
// failure.
type Authenticator struct {
	dir    Directory
	logger zerolog.Logger

	// decoyHash is verified against on lookup and activation failures so
	// those branches cost the same as a real secret mismatch.
	decoyHash string
}

// NewAuthenticator creates an authenticator over the given directory.
func NewAuthenticator(dir Directory, logger zerolog.Logger) (*Authenticator, error) {
	decoySecret, err := token.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate decoy secret: %w", err)
	}
	decoyHash, err := secrets.Hash(decoySecret)
	if err != nil {
		return nil, fmt.Errorf("hash decoy secret: %w", err)
	}

	return &Authenticator{
		dir:       dir,
		logger:    logger.With().Str("component", "auth").Logger(),
		decoyHash: decoyHash,
	}, nil
}

// Authenticate validates a raw token and resolves the owning tenant.
// Validation failures collapse into ErrUnauthorized; store failures propagate
// unchanged so callers can distinguish "not allowed" from "try again".
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (Identity, error) {
	parsed, err := token.Parse(raw)
	if err != nil {
		// No store access for malformed tokens.
		return Identity{}, a.deny("bad_format", "")
	}

	cred, err := a.dir.FindByPublicID(ctx, parsed.PublicID)
	if errors.Is(err, ErrCredentialNotFound) {
		a.equalize(parsed.Secret)
		return Identity{}, a.deny("unknown_credential", parsed.PublicID)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("directory lookup: %w", err)
	}

	if cred.IsRevoked() {
		a.equalize(parsed.Secret)
		return Identity{}, a.deny("credential_revoked", parsed.PublicID)
	}

	if !cred.Application.IsActive() {
		a.equalize(parsed.Secret)
		return Identity{}, a.deny("application_inactive", parsed.PublicID)
	}

	ok, err := secrets.Verify(cred.SecretHash, parsed.Secret)
	if err != nil {
		// A stored hash that cannot be decoded is a data defect, not a
		// caller mistake.
		return Identity{}, fmt.Errorf("verify secret for %s: %w", parsed.PublicID, err)
	}
	if !ok {
		return Identity{}, a.deny("secret_mismatch", parsed.PublicID)
	}

	return Identity{
		AccountID:     cred.Application.AccountID,
		ApplicationID: cred.ApplicationID,
		CredentialID:  cred.ID,
	}, nil
}

// deny logs the internal reason and returns the collapsed error.
func (a *Authenticator) deny(reason, publicID string) error {
	evt := a.logger.Debug().Str("reason", reason)
	if publicID != "" {
		evt = evt.Str("public_id", publicID)
	}
	evt.Msg("authentication denied")
	return ErrUnauthorized
}

// equalize burns an argon2 verification against the decoy hash so early
// failures take as long as a secret mismatch.
func (a *Authenticator) equalize(secret string) {
	_, _ = secrets.Verify(a.decoyHash, secret)
}
