package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/heimdall_gate/internal/archive"
	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/db"
)

var (
	exportStart  string
	exportEnd    string
	exportTarget string
	exportRate   float64
)

var auditExportCmd = &cobra.Command{
	Use:   "audit-export",
	Short: "Export the audit trail as NDJSON to the filesystem or S3",
	RunE:  runAuditExport,
}

func init() {
	auditExportCmd.Flags().StringVar(&exportStart, "start", "", "start of range, RFC3339 (default unbounded)")
	auditExportCmd.Flags().StringVar(&exportEnd, "end", "", "end of range, RFC3339 (default unbounded)")
	auditExportCmd.Flags().StringVar(&exportTarget, "to", "fs", "export target: fs or s3")
	auditExportCmd.Flags().Float64Var(&exportRate, "rate", 4, "max archive objects written per second (0 = unpaced)")
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	var start, end *time.Time
	if exportStart != "" {
		t, err := time.Parse(time.RFC3339, exportStart)
		if err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
		start = &t
	}
	if exportEnd != "" {
		t, err := time.Parse(time.RFC3339, exportEnd)
		if err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
		end = &t
	}

	ctx := context.Background()

	var sink archive.Sink
	switch exportTarget {
	case "fs":
		sink, err = archive.NewFSSink(cfg.ArchiveDir)
		if err != nil {
			return err
		}
	case "s3":
		sink, err = archive.NewS3Sink(ctx, archive.S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export target %q", exportTarget)
	}

	exporter := archive.NewExporter(audit.NewService(database, logger), sink, exportRate, logger)
	count, err := exporter.Export(ctx, start, end)
	if err != nil {
		return err
	}

	logger.Info().Int("events", count).Str("target", exportTarget).Msg("audit export complete")
	return nil
}
