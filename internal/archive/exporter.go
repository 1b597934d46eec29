/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/models"
)

// DefaultBatchSize is the number of audit events per archive object.
const DefaultBatchSize = 500

// Exporter writes the audit trail out as NDJSON objects, one batch per
// object. Uploads are paced so a large export does not saturate the sink.
type Exporter struct {
	svc     *audit.Service
	sink    Sink
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewExporter creates an audit archive exporter. putsPerSecond bounds the
// sink upload rate; zero or negative means unpaced.
func NewExporter(svc *audit.Service, sink Sink, putsPerSecond float64, logger zerolog.Logger) *Exporter {
	limit := rate.Inf
	if putsPerSecond > 0 {
		limit = rate.Limit(putsPerSecond)
	}
	return &Exporter{
		svc:     svc,
		sink:    sink,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "archive").Logger(),
	}
}

// Export walks audit events in [start, end] ascending and writes them to the
// sink in NDJSON batches. Nil bounds mean unbounded. Returns the number of
// events exported.
func (e *Exporter) Export(ctx context.Context, start, end *time.Time) (int, error) {
	total := 0
	seq := 0

	err := e.svc.ScanRange(ctx, start, end, DefaultBatchSize, func(batch []models.AuditEvent) error {
		data, err := encodeNDJSON(batch)
		if err != nil {
			return err
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		key := objectKey(batch[0].CreatedAt, seq)
		if err := e.sink.Put(ctx, key, data); err != nil {
			return err
		}

		total += len(batch)
		seq++
		e.logger.Info().Str("key", key).Int("events", len(batch)).Msg("archive batch exported")
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("export audit archive: %w", err)
	}

	return total, nil
}

// objectKey builds a stable, sortable key for one batch.
func objectKey(first time.Time, seq int) string {
	return fmt.Sprintf("audit/%s/%s-%04d.ndjson",
		first.UTC().Format("2006/01/02"),
		first.UTC().Format("150405"),
		seq)
}

func encodeNDJSON(batch []models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range batch {
		if err := enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("encode audit event %s: %w", entry.ID, err)
		}
	}
	return buf.Bytes(), nil
}
