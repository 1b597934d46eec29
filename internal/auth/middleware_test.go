/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/heimdall_gate/internal/models"
)

func newMiddlewareFixture(t *testing.T) (*Authenticator, string) {
	t.Helper()
	dir := &fakeDirectory{creds: map[string]*models.Credential{
		"pub1": newTestCredential(t, "pub1", "secretABC"),
	}}
	return newTestAuthenticator(t, dir), "sk_live_pub1_secretABC"
}

func echoIdentity(t *testing.T, gotIdentity *Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok {
			*gotIdentity = identity
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAPIKeyHeader(t *testing.T) {
	authn, raw := newMiddlewareFixture(t)

	var got Identity
	handler := Middleware(authn, nil)(echoIdentity(t, &got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(APIKeyHeader, raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.ApplicationID != "app-1" {
		t.Errorf("identity.ApplicationID = %q, want app-1", got.ApplicationID)
	}
}

func TestMiddlewareBearerTransport(t *testing.T) {
	authn, raw := newMiddlewareFixture(t)

	var got Identity
	handler := Middleware(authn, nil)(echoIdentity(t, &got))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.CredentialID != "cred-1" {
		t.Errorf("identity.CredentialID = %q, want cred-1", got.CredentialID)
	}
}

func TestMiddlewareMissingToken(t *testing.T) {
	authn, _ := newMiddlewareFixture(t)
	handler := Middleware(authn, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
}

func TestMiddlewareBadCredential(t *testing.T) {
	authn, _ := newMiddlewareFixture(t)
	handler := Middleware(authn, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with bad credentials")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(APIKeyHeader, "sk_live_pub1_wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareOperatorJWT(t *testing.T) {
	authn, _ := newMiddlewareFixture(t)
	secret := []byte("operator-signing-key")

	jwt, err := IssueOperatorToken(secret, OperatorClaims{
		OperatorID: "op-1",
		Roles:      []string{RoleAdmin},
	}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	var gotOperator string
	handler := Middleware(authn, secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := OperatorFromContext(r.Context()); ok {
			gotOperator = claims.OperatorID
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotOperator != "op-1" {
		t.Errorf("operator = %q, want op-1", gotOperator)
	}
}

func TestMiddlewareJWTRejectedWithoutSecret(t *testing.T) {
	authn, _ := newMiddlewareFixture(t)

	jwt, err := IssueOperatorToken([]byte("some-key"), OperatorClaims{OperatorID: "op-1"}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	handler := Middleware(authn, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with JWT while JWT auth disabled")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireOperator(t *testing.T) {
	authn, tenantToken := newMiddlewareFixture(t)
	secret := []byte("operator-signing-key")

	adminJWT, err := IssueOperatorToken(secret, OperatorClaims{OperatorID: "op-1", Roles: []string{RoleAdmin}}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	auditorJWT, err := IssueOperatorToken(secret, OperatorClaims{OperatorID: "op-2", Roles: []string{RoleAuditor}}, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	guarded := Middleware(authn, secret)(RequireOperator(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"admin operator", adminJWT, http.StatusOK},
		{"auditor lacks role", auditorJWT, http.StatusUnauthorized},
		{"tenant credential", tenantToken, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.bearer)
			rec := httptest.NewRecorder()
			guarded.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
