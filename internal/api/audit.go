/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/models"
)

// auditEventResponse is the JSON response for an audit trail entry.
type auditEventResponse struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	ApplicationID string         `json:"application_id,omitempty"`
	CredentialID  string         `json:"credential_id,omitempty"`
	EventType     string         `json:"event_type"`
	Details       map[string]any `json:"details,omitempty"`
}

// handleAuditList returns a paginated list of audit events (operators only).
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	filters := parseAuditFilters(r)

	entries, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit events")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	response := make([]auditEventResponse, len(entries))
	for i, entry := range entries {
		response[i] = toAuditEventResponse(entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_events": response,
		"total":        total,
		"limit":        filters.Limit,
		"offset":       filters.Offset,
	})
}

// parseAuditFilters extracts query filters from the request.
func parseAuditFilters(r *http.Request) audit.QueryFilters {
	filters := audit.QueryFilters{
		Limit:  100,
		Offset: 0,
	}

	if appID := r.URL.Query().Get("application_id"); appID != "" {
		filters.ApplicationID = &appID
	}

	if credID := r.URL.Query().Get("credential_id"); credID != "" {
		filters.CredentialID = &credID
	}

	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		t := models.AuditEventType(eventType)
		filters.EventType = &t
	}

	if startTime := r.URL.Query().Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filters.StartTime = &t
		}
	}

	if endTime := r.URL.Query().Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filters.EndTime = &t
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 1000 {
			filters.Limit = n
		}
	}

	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}

func toAuditEventResponse(entry models.AuditEvent) auditEventResponse {
	return auditEventResponse{
		ID:            entry.ID,
		Timestamp:     entry.CreatedAt,
		ApplicationID: entry.ApplicationID,
		CredentialID:  entry.CredentialID,
		EventType:     string(entry.EventType),
		Details:       entry.Details,
	}
}
