/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/ratelimit"
	"github.com/friendsincode/heimdall_gate/internal/rotation"
)

// API exposes HTTP handlers.
type API struct {
	authn     *auth.Authenticator
	jwtSecret []byte
	rotator   *rotation.Coordinator
	auditSvc  *audit.Service
	limiter   *ratelimit.Limiter
	logger    zerolog.Logger
}

// New creates the API router wrapper.
func New(authn *auth.Authenticator, jwtSecret []byte, rotator *rotation.Coordinator, auditSvc *audit.Service, limiter *ratelimit.Limiter, logger zerolog.Logger) *API {
	return &API{
		authn:     authn,
		jwtSecret: jwtSecret,
		rotator:   rotator,
		auditSvc:  auditSvc,
		limiter:   limiter,
		logger:    logger,
	}
}

// Routes mounts all API routes on the router. Health is public; everything
// else sits behind credential authentication and rate limiting.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.authn, a.jwtSecret))
			pr.Use(ratelimit.Middleware(a.limiter))

			pr.Route("/apps", func(r chi.Router) {
				r.Post("/keys/rotate", a.handleRotateKey)
			})

			pr.With(auth.RequireOperator(auth.RoleAdmin, auth.RoleAuditor)).Get("/audit", a.handleAuditList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
