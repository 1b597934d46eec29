package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/db"
	"github.com/friendsincode/heimdall_gate/internal/directory"
	"github.com/friendsincode/heimdall_gate/internal/models"
	"github.com/friendsincode/heimdall_gate/internal/rotation"
)

var (
	provisionAccountName string
	provisionAppName     string
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Create an account and application and mint their first credential",
	Long: "Create an account (reused if the name exists), an ACTIVE application under it, " +
		"and mint the application's first API credential. The plaintext token is printed " +
		"once and cannot be recovered afterwards.",
	RunE: runProvision,
}

func init() {
	provisionCmd.Flags().StringVar(&provisionAccountName, "account", "", "account name (required)")
	provisionCmd.Flags().StringVar(&provisionAppName, "app", "", "application name (required)")
	_ = provisionCmd.MarkFlagRequired("account")
	_ = provisionCmd.MarkFlagRequired("app")
}

func runProvision(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	auditSvc := audit.NewService(database, logger)

	var account models.Account
	var app models.Application

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", provisionAccountName).First(&account).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			account = models.Account{ID: uuid.NewString(), Name: provisionAccountName}
			if err := tx.Create(&account).Error; err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			if err := auditSvc.WithTx(tx).Append(ctx, "", "", models.AuditAccountCreated, map[string]any{
				"account_id": account.ID,
				"name":       account.Name,
			}); err != nil {
				return err
			}
		}

		app = models.Application{
			ID:        uuid.NewString(),
			AccountID: account.ID,
			Name:      provisionAppName,
			Status:    models.ApplicationActive,
		}
		if err := tx.Create(&app).Error; err != nil {
			return fmt.Errorf("create application: %w", err)
		}
		return auditSvc.WithTx(tx).Append(ctx, app.ID, "", models.AuditApplicationCreated, map[string]any{
			"account_id": account.ID,
			"name":       app.Name,
		})
	})
	if err != nil {
		return err
	}

	rotator := rotation.NewCoordinator(directory.New(database), auditSvc, nil, cfg.TokenPrefix, logger)
	result, err := rotator.Provision(ctx, account.ID, app.ID)
	if err != nil {
		return fmt.Errorf("mint credential: %w", err)
	}

	if err := auditSvc.Append(ctx, app.ID, "", models.AuditCredentialProvisioned, map[string]any{
		"public_id": result.PublicID,
	}); err != nil {
		logger.Warn().Err(err).Msg("provision audit append failed")
	}

	fmt.Printf("account_id:     %s\n", account.ID)
	fmt.Printf("application_id: %s\n", app.ID)
	fmt.Printf("key_id:         %s\n", result.PublicID)
	fmt.Printf("api_key:        %s\n", result.PlaintextToken)
	fmt.Println("\nStore the api_key now; it will not be shown again.")
	return nil
}
