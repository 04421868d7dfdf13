package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// migrations holds the versioned schema, applied in order at startup.
// The rest of the code assumes exactly this schema; a mismatch is a
// startup-time configuration error, never a per-request branch.
var migrations = []string{
	// v1: full initial schema
	`
	CREATE TABLE IF NOT EXISTS sources (
		id          TEXT PRIMARY KEY,
		store_id    TEXT NOT NULL,
		uri         TEXT NOT NULL,
		tab         TEXT NOT NULL DEFAULT '',
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		last_row    INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS raw_rows (
		idempotency_key TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL,
		row_number      INTEGER NOT NULL,
		signature       TEXT NOT NULL,
		fields          JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS ingestion_audit (
		idempotency_key TEXT NOT NULL,
		run_id          TEXT NOT NULL,
		source_id       TEXT NOT NULL,
		row_number      INTEGER NOT NULL,
		signature       TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		ref             TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_ingestion_audit_success
		ON ingestion_audit (idempotency_key) WHERE outcome = 'success';

	CREATE TABLE IF NOT EXISTS customers (
		id         TEXT PRIMARY KEY,
		store_id   TEXT NOT NULL,
		name       TEXT,
		phone      TEXT,
		email      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS ix_customers_store_phone ON customers (store_id, phone);
	CREATE INDEX IF NOT EXISTS ix_customers_store_email ON customers (store_id, email);

	CREATE TABLE IF NOT EXISTS orders (
		id           TEXT PRIMARY KEY,
		store_id     TEXT NOT NULL,
		customer_id  TEXT REFERENCES customers (id),
		external_key TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'new',
		total        DOUBLE PRECISION,
		currency     TEXT NOT NULL DEFAULT '',
		notes        TEXT NOT NULL DEFAULT '',
		raw_payload  JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (store_id, external_key)
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id       TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		sku      TEXT,
		title    TEXT,
		qty      INTEGER NOT NULL DEFAULT 1,
		price    DOUBLE PRECISION,
		currency TEXT,
		position INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS ix_order_items_order ON order_items (order_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		store_id    TEXT NOT NULL,
		customer_id TEXT REFERENCES customers (id),
		order_id    TEXT REFERENCES orders (id),
		contact     TEXT NOT NULL,
		origin      TEXT NOT NULL,
		locale      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'open',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS ix_conversations_lookup
		ON conversations (store_id, contact, origin) WHERE status <> 'closed';

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations (id),
		store_id        TEXT NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		action          TEXT,
		model           TEXT,
		latency_ms      BIGINT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS ix_messages_conversation ON messages (conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS channel_configs (
		store_id     TEXT PRIMARY KEY,
		provider     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		config       JSONB NOT NULL DEFAULT '{}'::jsonb,
		last_used_at TIMESTAMPTZ
	);
	`,
	// v2: per-store dialing prefix for phone normalization
	`
	ALTER TABLE sources ADD COLUMN IF NOT EXISTS country_code TEXT NOT NULL DEFAULT '';
	`,
}

// Migrate applies any unapplied schema versions inside a transaction.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin migration tx: %w", err)
		}
		if _, err := tx.Exec(ctx, migrations[v]); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("migration %d failed: %w", v+1, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, v+1); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %d: %w", v+1, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", v+1, err)
		}
		s.log.Info("applied schema migration", zap.Int("version", v+1))
	}

	return nil
}
