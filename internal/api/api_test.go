/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/directory"
	"github.com/friendsincode/heimdall_gate/internal/events"
	"github.com/friendsincode/heimdall_gate/internal/models"
	"github.com/friendsincode/heimdall_gate/internal/ratelimit"
	"github.com/friendsincode/heimdall_gate/internal/rotation"
	"github.com/friendsincode/heimdall_gate/internal/token"
)

var testJWTSecret = []byte("api-test-signing-key")

type apiFixture struct {
	router   chi.Router
	db       *gorm.DB
	rotator  *rotation.Coordinator
	apiToken string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Application{},
		&models.Credential{},
		&models.AuditEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := db.Create(&models.Account{ID: "acct-1", Name: "acme"}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := db.Create(&models.Application{
		ID: "app-1", AccountID: "acct-1", Name: "billing", Status: models.ApplicationActive,
	}).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}

	store := directory.New(db)
	auditSvc := audit.NewService(db, zerolog.Nop())
	rotator := rotation.NewCoordinator(store, auditSvc, events.NewBus(), token.PrefixLive, zerolog.Nop())

	result, err := rotator.Provision(t.Context(), "acct-1", "app-1")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	authn, err := auth.NewAuthenticator(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1000, time.Minute, nil, zerolog.Nop())

	router := chi.NewRouter()
	New(authn, testJWTSecret, rotator, auditSvc, limiter, zerolog.Nop()).Routes(router)

	return &apiFixture{
		router:   router,
		db:       db,
		rotator:  rotator,
		apiToken: result.PlaintextToken,
	}
}

func (f *apiFixture) do(method, path, apiKey, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.RemoteAddr = "203.0.113.9:4242"
	if apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("GET", "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRotateInvalidatesOldCredential(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("rotate status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result struct {
		APIKey   string `json:"api_key"`
		KeyID    string `json:"key_id"`
		LastFour string `json:"last_four"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.APIKey == "" || result.KeyID == "" {
		t.Fatalf("incomplete result: %+v", result)
	}
	if _, err := token.Parse(result.APIKey); err != nil {
		t.Fatalf("minted token does not parse: %v", err)
	}

	// The old credential is revoked; the new one authenticates.
	if rec := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("old token status = %d, want 401", rec.Code)
	}
	if rec := f.do("POST", "/api/v1/apps/keys/rotate", result.APIKey, ""); rec.Code != http.StatusCreated {
		t.Errorf("new token status = %d, want 201", rec.Code)
	}
}

func TestRotateKeepsOldWithRevokeOldFalse(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, `{"revoke_old": false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("rotate status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Both credentials authenticate.
	if rec := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, `{"revoke_old": false}`); rec.Code != http.StatusCreated {
		t.Errorf("old token status = %d, want 201", rec.Code)
	}
}

func TestRotateRejectsBadJSON(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRotateWithoutCredential(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do("POST", "/api/v1/apps/keys/rotate", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRotateWithOperatorJWTIsForbidden(t *testing.T) {
	f := newAPIFixture(t)

	jwt, err := auth.IssueOperatorToken(testJWTSecret, auth.OperatorClaims{
		OperatorID: "op-1", Roles: []string{auth.RoleAdmin},
	}, time.Minute)
	if err != nil {
		t.Fatalf("issue jwt: %v", err)
	}

	req := httptest.NewRequest("POST", "/api/v1/apps/keys/rotate", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAuditListRequiresOperator(t *testing.T) {
	f := newAPIFixture(t)

	// Tenant credentials cannot read the audit trail.
	rec := f.do("GET", "/api/v1/audit", f.apiToken, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("tenant status = %d, want 401", rec.Code)
	}

	jwt, err := auth.IssueOperatorToken(testJWTSecret, auth.OperatorClaims{
		OperatorID: "op-1", Roles: []string{auth.RoleAuditor},
	}, time.Minute)
	if err != nil {
		t.Fatalf("issue jwt: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/audit?event_type=credential.rotated", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("operator status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Events []auditEventResponse `json:"audit_events"`
		Total  int64                `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	// Provisioning in the fixture wrote one rotation event.
	if payload.Total != 1 {
		t.Errorf("total = %d, want 1", payload.Total)
	}
	if len(payload.Events) != 1 || payload.Events[0].EventType != "credential.rotated" {
		t.Errorf("events = %+v, want one credential.rotated", payload.Events)
	}
}

func TestRateLimitOnRoutes(t *testing.T) {
	f := newAPIFixture(t)

	// Rebuild the router with a quota of 1 to exercise the 429 path.
	store := directory.New(f.db)
	authn, err := auth.NewAuthenticator(store, zerolog.Nop())
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	auditSvc := audit.NewService(f.db, zerolog.Nop())
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 1, time.Minute, nil, zerolog.Nop())

	router := chi.NewRouter()
	New(authn, testJWTSecret, f.rotator, auditSvc, limiter, zerolog.Nop()).Routes(router)
	f.router = router

	first := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, `{"revoke_old": false}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}
	second := f.do("POST", "/api/v1/apps/keys/rotate", f.apiToken, `{"revoke_old": false}`)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
}
