/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator roles.
const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// OperatorClaims identify a platform operator (not a tenant). Operators use
// short-lived HS256 tokens for administrative endpoints such as the audit
// listing; tenant traffic always authenticates with API credentials.
type OperatorClaims struct {
	OperatorID string   `json:"oid"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the operator carries the given role.
func (c *OperatorClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IssueOperatorToken creates a signed operator token string.
func IssueOperatorToken(secret []byte, claims OperatorClaims, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Subject:   claims.OperatorID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseOperatorToken validates an operator token string. Only HS256 is
// accepted.
func ParseOperatorToken(secret []byte, token string) (*OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*OperatorClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
