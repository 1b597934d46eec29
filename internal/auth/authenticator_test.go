/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/models"
	"github.com/friendsincode/heimdall_gate/internal/secrets"
	"github.com/friendsincode/heimdall_gate/internal/token"
)

// fakeDirectory serves credentials from a map and can simulate outages.
type fakeDirectory struct {
	creds map[string]*models.Credential
	err   error
}

func (f *fakeDirectory) FindByPublicID(_ context.Context, publicID string) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	cred, ok := f.creds[publicID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cred, nil
}

func newTestCredential(t *testing.T, publicID, secret string) *models.Credential {
	t.Helper()
	hash, err := secrets.Hash(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	return &models.Credential{
		ID:            "cred-1",
		ApplicationID: "app-1",
		Application: models.Application{
			ID:        "app-1",
			AccountID: "acct-1",
			Status:    models.ApplicationActive,
		},
		PublicID:   publicID,
		Prefix:     token.PrefixLive,
		SecretHash: hash,
		IsActive:   true,
	}
}

func newTestAuthenticator(t *testing.T, dir Directory) *Authenticator {
	t.Helper()
	authn, err := NewAuthenticator(dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return authn
}

func TestAuthenticateSuccess(t *testing.T) {
	dir := &fakeDirectory{creds: map[string]*models.Credential{
		"pub1": newTestCredential(t, "pub1", "secretABC"),
	}}
	authn := newTestAuthenticator(t, dir)

	identity, err := authn.Authenticate(context.Background(), "sk_live_pub1_secretABC")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.AccountID != "acct-1" || identity.ApplicationID != "app-1" || identity.CredentialID != "cred-1" {
		t.Errorf("identity = %+v, want acct-1/app-1/cred-1", identity)
	}
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	inactive := newTestCredential(t, "pub2", "secretABC")
	inactive.Application.Status = models.ApplicationSuspended

	revokedAt := time.Now()
	revoked := newTestCredential(t, "pub3", "secretABC")
	revoked.IsActive = false
	revoked.RevokedAt = &revokedAt

	dir := &fakeDirectory{creds: map[string]*models.Credential{
		"pub1": newTestCredential(t, "pub1", "secretABC"),
		"pub2": inactive,
		"pub3": revoked,
	}}
	authn := newTestAuthenticator(t, dir)

	tests := []struct {
		name string
		raw  string
	}{
		{"malformed token", "not-a-token"},
		{"empty token", ""},
		{"unknown public id", "sk_live_nope_secretABC"},
		{"wrong secret", "sk_live_pub1_wrongsecret"},
		{"suspended application", "sk_live_pub2_secretABC"},
		{"revoked credential", "sk_live_pub3_secretABC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authn.Authenticate(context.Background(), tt.raw)
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Authenticate(%q) error = %v, want ErrUnauthorized", tt.raw, err)
			}
		})
	}
}

func TestAuthenticateStoreErrorIsNotUnauthorized(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	authn := newTestAuthenticator(t, dir)

	_, err := authn.Authenticate(context.Background(), "sk_live_pub1_secretABC")
	if err == nil {
		t.Fatal("Authenticate() = nil error, want store error")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Errorf("store failure collapsed into ErrUnauthorized: %v", err)
	}
}

func TestAuthenticateMalformedSkipsDirectory(t *testing.T) {
	// A failing directory proves malformed tokens never reach the store.
	dir := &fakeDirectory{err: errors.New("should not be called")}
	authn := newTestAuthenticator(t, dir)

	_, err := authn.Authenticate(context.Background(), "garbage")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Authenticate(garbage) error = %v, want ErrUnauthorized", err)
	}
}
