/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestOperatorTokenRoundTrip(t *testing.T) {
	secret := []byte("test-signing-key")

	raw, err := IssueOperatorToken(secret, OperatorClaims{
		OperatorID: "op-1",
		Roles:      []string{RoleAdmin, RoleAuditor},
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ParseOperatorToken(secret, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.OperatorID != "op-1" {
		t.Errorf("OperatorID = %q, want op-1", claims.OperatorID)
	}
	if !claims.HasRole(RoleAdmin) || !claims.HasRole(RoleAuditor) {
		t.Errorf("roles = %v, want admin and auditor", claims.Roles)
	}
	if claims.HasRole("root") {
		t.Error("HasRole(root) = true for unassigned role")
	}
}

func TestParseOperatorTokenRejectsWrongKey(t *testing.T) {
	raw, err := IssueOperatorToken([]byte("key-a"), OperatorClaims{OperatorID: "op-1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ParseOperatorToken([]byte("key-b"), raw); err == nil {
		t.Fatal("ParseOperatorToken accepted token signed with a different key")
	}
}

func TestParseOperatorTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-signing-key")
	raw, err := IssueOperatorToken(secret, OperatorClaims{OperatorID: "op-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := ParseOperatorToken(secret, raw); err == nil {
		t.Fatal("ParseOperatorToken accepted an expired token")
	}
}

func TestParseOperatorTokenRejectsNonHS256(t *testing.T) {
	secret := []byte("test-signing-key")

	tok := jwt.NewWithClaims(jwt.SigningMethodHS384, &OperatorClaims{
		OperatorID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	raw, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseOperatorToken(secret, raw); err == nil {
		t.Fatal("ParseOperatorToken accepted an HS384 token")
	}
}
