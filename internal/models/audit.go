/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditEventType tags a security-relevant action.
type AuditEventType string

// Audit event constants for all sensitive credential operations.
const (
	AuditCredentialRotated     AuditEventType = "credential.rotated"
	AuditCredentialRevoked     AuditEventType = "credential.revoked"
	AuditCredentialProvisioned AuditEventType = "credential.provisioned"
	AuditApplicationCreated    AuditEventType = "application.created"
	AuditAccountCreated        AuditEventType = "account.created"
)

// AuditEvent records a security-relevant action for later inspection.
// Rows are append-only and never updated or deleted once written.
type AuditEvent struct {
	ID            string         `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID string         `gorm:"type:uuid;index:idx_audit_application;not null" json:"application_id"`
	CredentialID  string         `gorm:"type:uuid;index:idx_audit_credential" json:"credential_id,omitempty"`
	EventType     AuditEventType `gorm:"type:varchar(64);index:idx_audit_event_type;not null" json:"event_type"`
	Details       map[string]any `gorm:"type:jsonb;serializer:json" json:"details,omitempty"`
	CreatedAt     time.Time      `gorm:"index:idx_audit_created_at" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditEvent) TableName() string {
	return "audit_events"
}
