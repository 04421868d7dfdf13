// Package store provides the PostgreSQL persistence layer. The database
// is the single source of truth; every write path is keyed by a unique
// constraint so concurrent workers need no extra locking.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the connection pool and exposes typed accessors.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Connect opens the connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, log *logger.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, log: log.Component("store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Healthy reports whether the database answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// isUniqueViolation reports whether err is a duplicate-key error. With
// idempotent keys a duplicate insert means "already applied".
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
