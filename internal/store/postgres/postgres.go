// Package postgres implements the store interfaces on PostgreSQL via
// pgx. Each mutation is a single auto-committed statement, so concurrent
// pollers always observe consistent job counters while imports run.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/chesslog/chesslog/internal/store"
)

// DB wraps a pgx connection pool and exposes per-entity store views.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the underlying pool.
func (d *DB) Close() {
	d.pool.Close()
}

// Accounts returns the store.AccountStore view.
func (d *DB) Accounts() store.AccountStore { return &accounts{d.pool} }

// Games returns the store.GameStore view.
func (d *DB) Games() store.GameStore { return &games{d.pool} }

// Jobs returns the store.JobStore view.
func (d *DB) Jobs() store.JobStore { return &jobs{d.pool} }

// Migrate applies the schema migrations in order. Statements are
// idempotent; running against an up-to-date database is a no-op.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("Database schema up to date")
	return nil
}
