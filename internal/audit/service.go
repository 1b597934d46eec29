/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/models"
)

// Service appends and queries the append-only audit trail.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// WithTx returns a service bound to the given transaction so that audit rows
// commit or roll back together with the mutation they describe.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx, logger: s.logger}
}

// Append records one security-relevant action. Entries are immutable once
// written; there is no update or delete path.
func (s *Service) Append(ctx context.Context, applicationID, credentialID string, eventType models.AuditEventType, details map[string]any) error {
	entry := &models.AuditEvent{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		CredentialID:  credentialID,
		EventType:     eventType,
		Details:       details,
		CreatedAt:     time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Str("application_id", applicationID).
		Str("id", entry.ID).
		Msg("audit event appended")

	return nil
}

// QueryFilters defines filters for querying audit events.
type QueryFilters struct {
	ApplicationID *string
	CredentialID  *string
	EventType     *models.AuditEventType
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int
	Offset        int
}

// Query retrieves audit events with filters, most recent first.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditEvent, int64, error) {
	var entries []models.AuditEvent
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditEvent{})

	if filters.ApplicationID != nil {
		query = query.Where("application_id = ?", *filters.ApplicationID)
	}
	if filters.CredentialID != nil {
		query = query.Where("credential_id = ?", *filters.CredentialID)
	}
	if filters.EventType != nil {
		query = query.Where("event_type = ?", *filters.EventType)
	}
	if filters.StartTime != nil {
		query = query.Where("created_at >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("created_at <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// ScanRange walks events in ascending creation order, handing them to fn in
// batches. Used by the archive exporter; the id tiebreak keeps the walk
// stable when many events share a timestamp.
func (s *Service) ScanRange(ctx context.Context, start, end *time.Time, batchSize int, fn func([]models.AuditEvent) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	offset := 0
	for {
		query := s.db.WithContext(ctx).Model(&models.AuditEvent{})
		if start != nil {
			query = query.Where("created_at >= ?", *start)
		}
		if end != nil {
			query = query.Where("created_at <= ?", *end)
		}

		var batch []models.AuditEvent
		if err := query.Order("created_at ASC, id ASC").Limit(batchSize).Offset(offset).Find(&batch).Error; err != nil {
			return fmt.Errorf("scan audit events: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		offset += batchSize
	}
}
