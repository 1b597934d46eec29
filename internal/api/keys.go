/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/rotation"
)

// rotateKeyRequest is the JSON body for a rotation request. revoke_old
// defaults to true when the body or the field is absent.
type rotateKeyRequest struct {
	RevokeOld *bool `json:"revoke_old"`
}

// handleRotateKey mints a fresh credential for the calling application. The
// plaintext token appears exactly once, in this response.
func (a *API) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Operator JWTs pass the auth middleware but carry no tenant
		// identity to rotate for.
		writeError(w, http.StatusForbidden, "tenant_credential_required")
		return
	}

	revokeOld := true
	if r.Body != nil && r.ContentLength != 0 {
		var req rotateKeyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if req.RevokeOld != nil {
			revokeOld = *req.RevokeOld
		}
	}

	result, err := a.rotator.Rotate(r.Context(), identity, revokeOld)
	switch {
	case errors.Is(err, rotation.ErrRotationConflict):
		writeError(w, http.StatusConflict, "rotation_conflict")
		return
	case errors.Is(err, rotation.ErrNoIdentity):
		writeError(w, http.StatusForbidden, "tenant_credential_required")
		return
	case err != nil:
		a.logger.Error().Err(err).Str("application_id", identity.ApplicationID).Msg("rotation failed")
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}
