/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/models"
)

func openDirectoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Account{},
		&models.Application{},
		&models.Credential{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedCredential(t *testing.T, db *gorm.DB) *models.Credential {
	t.Helper()

	account := models.Account{ID: "acct-1", Name: "acme"}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	app := models.Application{ID: "app-1", AccountID: "acct-1", Name: "billing", Status: models.ApplicationActive}
	if err := db.Create(&app).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}
	cred := models.Credential{
		ID:            "cred-1",
		ApplicationID: "app-1",
		PublicID:      "pub1",
		Prefix:        "sk_live",
		SecretHash:    "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		LastFour:      "tABC",
		IsActive:      true,
	}
	if err := db.Create(&cred).Error; err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return &cred
}

func TestFindByPublicIDPreloadsOwners(t *testing.T) {
	db := openDirectoryTestDB(t)
	seedCredential(t, db)
	store := New(db)

	cred, err := store.FindByPublicID(context.Background(), "pub1")
	if err != nil {
		t.Fatalf("FindByPublicID() error = %v", err)
	}
	if cred.Application.ID != "app-1" {
		t.Errorf("Application.ID = %q, want app-1", cred.Application.ID)
	}
	if cred.Application.Account.ID != "acct-1" {
		t.Errorf("Account.ID = %q, want acct-1", cred.Application.Account.ID)
	}
}

func TestFindByPublicIDUnknown(t *testing.T) {
	db := openDirectoryTestDB(t)
	store := New(db)

	_, err := store.FindByPublicID(context.Background(), "missing")
	if !errors.Is(err, auth.ErrCredentialNotFound) {
		t.Errorf("error = %v, want ErrCredentialNotFound", err)
	}
}

func TestDeactivateGuardsActiveFlag(t *testing.T) {
	db := openDirectoryTestDB(t)
	seedCredential(t, db)
	store := New(db)
	ctx := context.Background()

	if err := store.Deactivate(ctx, nil, "cred-1", time.Now()); err != nil {
		t.Fatalf("first Deactivate() error = %v", err)
	}

	// Second deactivation loses the guard and reports the conflict.
	err := store.Deactivate(ctx, nil, "cred-1", time.Now())
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("second Deactivate() error = %v, want ErrAlreadyRevoked", err)
	}

	var cred models.Credential
	if err := db.First(&cred, "id = ?", "cred-1").Error; err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	if cred.IsActive {
		t.Error("credential still active after deactivation")
	}
	if cred.RevokedAt == nil {
		t.Error("RevokedAt not stamped")
	}
}

func TestDeactivateUnknownCredential(t *testing.T) {
	db := openDirectoryTestDB(t)
	store := New(db)

	err := store.Deactivate(context.Background(), nil, "ghost", time.Now())
	if !errors.Is(err, ErrAlreadyRevoked) {
		t.Errorf("error = %v, want ErrAlreadyRevoked", err)
	}
}
