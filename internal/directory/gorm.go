/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package directory resolves and mutates credential records. The read path
// implements auth.Directory; the write primitives are invoked by the rotation
// coordinator inside a single transaction.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/models"
)

// ErrAlreadyRevoked is returned when a deactivation targets a credential
// that is no longer active, which happens when two rotations race.
var ErrAlreadyRevoked = errors.New("credential already revoked")

// Store is the GORM-backed credential directory.
type Store struct {
	db *gorm.DB
}

// New creates a directory over the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindByPublicID resolves a credential with its owning application and
// account. Returns auth.ErrCredentialNotFound when no row exists.
func (s *Store) FindByPublicID(ctx context.Context, publicID string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Preload("Application").
		Preload("Application.Account").
		Where("public_id = ?", publicID).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, auth.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find credential %s: %w", publicID, err)
	}
	return &cred, nil
}

// Create inserts a new credential row using the given handle, which may be a
// transaction.
func (s *Store) Create(ctx context.Context, tx *gorm.DB, cred *models.Credential) error {
	if tx == nil {
		tx = s.db
	}
	if err := tx.WithContext(ctx).Create(cred).Error; err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// Deactivate marks a credential revoked at the given instant. The update is
// guarded on is_active so only the first of two racing rotations wins;
// the loser gets ErrAlreadyRevoked and must abort its transaction.
func (s *Store) Deactivate(ctx context.Context, tx *gorm.DB, credentialID string, at time.Time) error {
	if tx == nil {
		tx = s.db
	}
	result := tx.WithContext(ctx).Model(&models.Credential{}).
		Where("id = ? AND is_active = ?", credentialID, true).
		Updates(map[string]any{"is_active": false, "revoked_at": at})
	if result.Error != nil {
		return fmt.Errorf("deactivate credential %s: %w", credentialID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyRevoked
	}
	return nil
}

// Transaction runs fn inside one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// DB exposes the underlying handle for services that share the store.
func (s *Store) DB() *gorm.DB {
	return s.db
}
