/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ratelimit

import (
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/telemetry"
)

// fallbackBucket keys traffic that carries neither an identity nor a usable
// network origin.
const fallbackBucket = "anon"

// BucketKey derives the throttling bucket for a request. Priority: verified
// credential, then network origin, then a shared fallback. Keying on the
// credential means a rotation moves the tenant to a fresh bucket, which
// implicitly resets its window.
func BucketKey(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return "cred:" + identity.CredentialID
	}
	if claims, ok := auth.OperatorFromContext(r.Context()); ok {
		return "op:" + claims.OperatorID
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	return fallbackBucket
}

// Middleware enforces the quota. It must run after the auth middleware so
// the bucket key can use the verified identity.
func Middleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.URL.Path
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
				if pattern := routeCtx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			decision := limiter.Allow(r.Context(), BucketKey(r), route)
			if !decision.Allowed {
				telemetry.RateLimitRejectionsTotal.Inc()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(decision.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too_many_requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
