package store

import (
	"context"
	"fmt"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// ShouldProcess reports whether a row with the given idempotency key still
// needs to be applied. A recorded success blocks reprocessing; an error
// record does not, so failed rows are retried on the next tick. Editing a
// spreadsheet cell changes the signature and therefore the key, which is
// what makes edits reprocess while untouched rows never do.
func (s *Store) ShouldProcess(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM ingestion_audit
			WHERE idempotency_key = $1 AND outcome = 'success'
		)`, idempotencyKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ingestion ledger: %w", err)
	}
	return !exists, nil
}

// RecordProcessed writes one audit entry for an attempted row application.
// A duplicate success entry (written by a concurrent or redelivered run)
// counts as already applied, not as an error.
func (s *Store) RecordProcessed(ctx context.Context, rec model.IngestionAudit) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingestion_audit (idempotency_key, run_id, source_id, row_number, signature, outcome, ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.IdempotencyKey, rec.RunID, rec.SourceID, rec.RowNumber, rec.Signature, string(rec.Outcome), rec.Ref,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to record ingestion audit: %w", err)
	}
	return nil
}

// SaveRawRow stores the immutable snapshot of one distinct row. Replays
// of the same (source, row, signature) triple are no-ops.
func (s *Store) SaveRawRow(ctx context.Context, row model.RawRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_rows (idempotency_key, source_id, row_number, signature, fields)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		row.IdempotencyKey, row.SourceID, row.RowNumber, row.Signature, row.Fields,
	)
	if err != nil {
		return fmt.Errorf("failed to save raw row: %w", err)
	}
	return nil
}
