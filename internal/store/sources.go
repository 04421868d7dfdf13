package store

import (
	"context"
	"fmt"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// ListEnabledSources returns every enabled source, oldest first so the
// scheduler visits tenants in a stable order.
func (s *Store) ListEnabledSources(ctx context.Context) ([]model.SourceConfig, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, store_id, uri, tab, country_code, enabled, last_row, created_at, updated_at
		FROM sources WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var srcs []model.SourceConfig
	for rows.Next() {
		var sc model.SourceConfig
		if err := rows.Scan(&sc.ID, &sc.StoreID, &sc.URI, &sc.Tab, &sc.CountryCode,
			&sc.Enabled, &sc.LastRow, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		srcs = append(srcs, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return srcs, nil
}

// AdvanceSourceCursor records the highest row number seen in the last
// tick. Advisory only; the ledger decides reprocessing.
func (s *Store) AdvanceSourceCursor(ctx context.Context, sourceID string, lastRow int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET last_row = $2, updated_at = now() WHERE id = $1`,
		sourceID, lastRow,
	)
	if err != nil {
		return fmt.Errorf("failed to advance source cursor: %w", err)
	}
	return nil
}
