/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ApplicationStatus enumerates activation states for an application.
type ApplicationStatus string

const (
	ApplicationActive    ApplicationStatus = "ACTIVE"
	ApplicationSuspended ApplicationStatus = "SUSPENDED"
	ApplicationDisabled  ApplicationStatus = "DISABLED"
)

// Account is the top-level tenant boundary. Every resource is scoped to an
// account, directly or through one of its applications.
type Account struct {
	ID        string `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Application belongs to exactly one account. Only ACTIVE applications may
// authenticate.
type Application struct {
	ID        string            `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID string            `gorm:"type:uuid;index;not null" json:"account_id"`
	Account   Account           `gorm:"foreignKey:AccountID" json:"-"`
	Name      string            `gorm:"not null" json:"name"`
	Status    ApplicationStatus `gorm:"type:varchar(16);not null;default:'ACTIVE'" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsActive reports whether the application may authenticate.
func (a *Application) IsActive() bool {
	return a.Status == ApplicationActive
}

// Credential is an API key issued to an application. The plaintext secret is
// never stored; only its argon2id hash and the trailing four characters kept
// for operator display. Rows are never deleted: revocation flips IsActive and
// stamps RevokedAt exactly once.
type Credential struct {
	ID            string      `gorm:"type:uuid;primaryKey" json:"id"`
	ApplicationID string      `gorm:"type:uuid;index;not null" json:"application_id"`
	Application   Application `gorm:"foreignKey:ApplicationID" json:"-"`
	PublicID      string      `gorm:"uniqueIndex;not null" json:"public_id"`
	Prefix        string      `gorm:"type:varchar(16);not null" json:"prefix"`
	SecretHash    string      `gorm:"not null" json:"-"`
	LastFour      string      `gorm:"type:varchar(4)" json:"last_four"`
	IsActive      bool        `gorm:"not null;default:true" json:"is_active"`
	RevokedAt     *time.Time  `json:"revoked_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// IsRevoked returns true once the credential has been deactivated.
func (c *Credential) IsRevoked() bool {
	return c.RevokedAt != nil || !c.IsActive
}
