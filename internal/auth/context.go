/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import "context"

type contextKey string

const (
	identityContextKey contextKey = "hgIdentity"
	operatorContextKey contextKey = "hgOperator"
)

// Identity is the verified tenant identity: all three ids resolve together
// or authentication fails entirely. It is attached to the request context by
// the middleware and nowhere else.
type Identity struct {
	AccountID     string
	ApplicationID string
	CredentialID  string
}

// WithIdentity attaches a verified tenant identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext retrieves the tenant identity if present. It is the
// only sanctioned way downstream logic learns who is calling.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(Identity)
	return id, ok && id.AccountID != ""
}

// WithOperator attaches platform operator claims to the context.
func WithOperator(ctx context.Context, claims *OperatorClaims) context.Context {
	return context.WithValue(ctx, operatorContextKey, claims)
}

// OperatorFromContext retrieves operator claims from context if present.
func OperatorFromContext(ctx context.Context) (*OperatorClaims, bool) {
	claims, ok := ctx.Value(operatorContextKey).(*OperatorClaims)
	return claims, ok && claims != nil
}
