/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/friendsincode/heimdall_gate/internal/telemetry"
	"github.com/friendsincode/heimdall_gate/internal/token"
)

// APIKeyHeader is the dedicated credential header; Authorization with a
// Bearer prefix is accepted as an alternative transport.
const APIKeyHeader = "X-API-Key"

// Middleware authenticates API credentials and injects the tenant identity
// into the request context. If jwtSecret is non-nil, operator JWTs presented
// as Bearer tokens are accepted as well and yield operator claims instead of
// a tenant identity.
func Middleware(authn *Authenticator, jwtSecret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractToken(r)
			if raw == "" {
				telemetry.AuthOutcomesTotal.WithLabelValues("missing").Inc()
				unauthorized(w)
				return
			}

			// Operator JWTs are not API tokens; route by shape first so a
			// tenant credential never reaches the JWT parser and vice versa.
			if _, err := token.Parse(raw); err != nil && jwtSecret != nil {
				claims, jwtErr := ParseOperatorToken(jwtSecret, raw)
				if jwtErr != nil {
					telemetry.AuthOutcomesTotal.WithLabelValues("unauthorized").Inc()
					unauthorized(w)
					return
				}
				telemetry.AuthOutcomesTotal.WithLabelValues("operator").Inc()
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), claims)))
				return
			}

			identity, err := authn.Authenticate(r.Context(), raw)
			switch {
			case errors.Is(err, ErrUnauthorized):
				telemetry.AuthOutcomesTotal.WithLabelValues("unauthorized").Inc()
				unauthorized(w)
				return
			case err != nil:
				// Store or timeout trouble is retryable, not a caller fault.
				telemetry.AuthOutcomesTotal.WithLabelValues("error").Inc()
				unavailable(w)
				return
			}

			telemetry.AuthOutcomesTotal.WithLabelValues("ok").Inc()
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireOperator guards administrative endpoints. With no roles given any
// operator passes; otherwise one of the listed roles is required. It must
// run after Middleware.
func RequireOperator(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := OperatorFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			allowed := len(roles) == 0
			for _, role := range roles {
				if claims.HasRole(role) {
					allowed = true
					break
				}
			}
			if !allowed {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

func unavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`{"error":"temporarily_unavailable"}`))
}

func extractToken(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key
	}

	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
