package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/heimdall_gate/internal/auth"
)

var (
	operatorID    string
	operatorRoles []string
	operatorTTL   time.Duration
)

var operatorTokenCmd = &cobra.Command{
	Use:   "operator-token",
	Short: "Issue a short-lived operator JWT for administrative endpoints",
	RunE:  runOperatorToken,
}

func init() {
	operatorTokenCmd.Flags().StringVar(&operatorID, "operator", "", "operator identifier (required)")
	operatorTokenCmd.Flags().StringSliceVar(&operatorRoles, "roles", []string{auth.RoleAuditor}, "roles to embed")
	operatorTokenCmd.Flags().DurationVar(&operatorTTL, "ttl", time.Hour, "token lifetime")
	_ = operatorTokenCmd.MarkFlagRequired("operator")
}

func runOperatorToken(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	token, err := auth.IssueOperatorToken([]byte(cfg.JWTSigningKey), auth.OperatorClaims{
		OperatorID: operatorID,
		Roles:      operatorRoles,
	}, operatorTTL)
	if err != nil {
		return fmt.Errorf("issue operator token: %w", err)
	}

	fmt.Println(token)
	return nil
}
