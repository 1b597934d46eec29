/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/auth"
)

func TestLimiterEnforcesQuota(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 3, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision := limiter.Allow(ctx, "cred:abc", "/route")
		if !decision.Allowed {
			t.Fatalf("request %d denied within quota", i+1)
		}
		if decision.Remaining != int64(2-i) {
			t.Errorf("request %d remaining = %d, want %d", i+1, decision.Remaining, 2-i)
		}
	}

	decision := limiter.Allow(ctx, "cred:abc", "/route")
	if decision.Allowed {
		t.Fatal("request over quota allowed")
	}
	if decision.RetryAfter <= 0 {
		t.Error("denied decision lacks RetryAfter")
	}
}

func TestLimiterBucketsAreIndependent(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 1, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	if d := limiter.Allow(ctx, "cred:a", "/route"); !d.Allowed {
		t.Fatal("first bucket denied")
	}
	if d := limiter.Allow(ctx, "cred:b", "/route"); !d.Allowed {
		t.Fatal("second bucket affected by first bucket's quota")
	}
	if d := limiter.Allow(ctx, "cred:a", "/route"); d.Allowed {
		t.Fatal("first bucket not exhausted")
	}
}

func TestMemoryStoreWindowReset(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Incr(ctx, "k", 10*time.Millisecond); err != nil {
			t.Fatalf("Incr: %v", err)
		}
	}
	time.Sleep(20 * time.Millisecond)

	count, err := store.Incr(ctx, "k", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Incr: %v", err)
	}
	if count != 1 {
		t.Errorf("count after window = %d, want 1", count)
	}
}

// failingStore simulates a Redis outage.
type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestLimiterFallsBackOnStoreError(t *testing.T) {
	limiter := NewLimiter(failingStore{}, 2, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	if d := limiter.Allow(ctx, "cred:a", "/route"); !d.Allowed {
		t.Fatal("fallback denied first request")
	}
	if d := limiter.Allow(ctx, "cred:a", "/route"); !d.Allowed {
		t.Fatal("fallback denied second request")
	}
	if d := limiter.Allow(ctx, "cred:a", "/route"); d.Allowed {
		t.Fatal("fallback did not enforce quota")
	}
}

func TestLimiterRoutePolicyOverride(t *testing.T) {
	policies := []Policy{{Route: "/tight", Quota: 1, WindowSeconds: 60}}
	limiter := NewLimiter(NewMemoryStore(), 100, time.Minute, policies, zerolog.Nop())
	ctx := context.Background()

	if d := limiter.Allow(ctx, "cred:a", "/tight"); !d.Allowed {
		t.Fatal("first request on tight route denied")
	}
	if d := limiter.Allow(ctx, "cred:a", "/tight"); d.Allowed {
		t.Fatal("tight route policy not applied")
	}
	// Default quota still governs other routes.
	if d := limiter.Allow(ctx, "cred:a", "/loose"); !d.Allowed {
		t.Fatal("default route affected by policy")
	}
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := []byte(`policies:
  - route: /api/v1/apps/keys/rotate
    quota: 5
    window_seconds: 3600
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	policies, err := LoadPolicies(path)
	if err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("len = %d, want 1", len(policies))
	}
	if policies[0].Quota != 5 || policies[0].Window() != time.Hour {
		t.Errorf("policy = %+v, want quota 5 window 1h", policies[0])
	}
}

func TestLoadPoliciesValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("policies:\n  - route: /x\n    quota: 0\n    window_seconds: 60\n"), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	if _, err := LoadPolicies(path); err == nil {
		t.Fatal("LoadPolicies accepted zero quota")
	}
}

func TestLoadPoliciesEmptyPath(t *testing.T) {
	policies, err := LoadPolicies("")
	if err != nil || policies != nil {
		t.Errorf("LoadPolicies(\"\") = %v, %v; want nil, nil", policies, err)
	}
}

func TestBucketKeyPriority(t *testing.T) {
	base := httptest.NewRequest("GET", "/", nil)
	base.RemoteAddr = "203.0.113.9:4242"

	withIdentity := base.WithContext(auth.WithIdentity(base.Context(), auth.Identity{
		AccountID: "acct-1", ApplicationID: "app-1", CredentialID: "cred-1",
	}))
	withOperator := base.WithContext(auth.WithOperator(base.Context(), &auth.OperatorClaims{OperatorID: "op-1"}))

	noAddr := httptest.NewRequest("GET", "/", nil)
	noAddr.RemoteAddr = ""

	tests := []struct {
		name string
		req  *http.Request
		want string
	}{
		{"credential identity", withIdentity, "cred:cred-1"},
		{"operator claims", withOperator, "op:op-1"},
		{"network origin", base, "ip:203.0.113.9"},
		{"no origin at all", noAddr, "anon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketKey(tt.req); got != tt.want {
				t.Errorf("BucketKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareRejectsOverQuota(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), 1, time.Minute, nil, zerolog.Nop())

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4242"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}
