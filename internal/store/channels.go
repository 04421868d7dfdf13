package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// GetChannelConfig loads the tenant's messaging channel configuration.
// A missing row is a configuration error surfaced to the caller.
func (s *Store) GetChannelConfig(ctx context.Context, storeID string) (*model.ChannelConfig, error) {
	var cc model.ChannelConfig
	err := s.pool.QueryRow(ctx, `
		SELECT store_id, provider, display_name, config, last_used_at
		FROM channel_configs WHERE store_id = $1`, storeID,
	).Scan(&cc.StoreID, &cc.Provider, &cc.DisplayName, &cc.Config, &cc.LastUsedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel config: %w", err)
	}
	return &cc, nil
}

// TouchChannelConfig updates last_used_at. Best-effort bookkeeping queued
// after a successful dispatch; failures are the caller's to log, never to
// propagate.
func (s *Store) TouchChannelConfig(ctx context.Context, storeID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE channel_configs SET last_used_at = now() WHERE store_id = $1`, storeID)
	if err != nil {
		return fmt.Errorf("failed to touch channel config: %w", err)
	}
	return nil
}
