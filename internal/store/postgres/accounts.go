package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

type accounts struct {
	pool *pgxpool.Pool
}

func (s *accounts) Create(ctx context.Context, platform model.Platform, username, label string) (*model.Account, error) {
	a := &model.Account{Platform: platform, Username: username, Label: label}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO account (platform, username, label)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at`,
		platform, username, label,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return a, nil
}

const accountColumns = `id, platform, username, COALESCE(label, ''), created_at, last_sync_at`

func scanAccount(row pgx.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(&a.ID, &a.Platform, &a.Username, &a.Label, &a.CreatedAt, &a.LastSyncAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *accounts) Get(ctx context.Context, id int64) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM account WHERE id = $1`, id))
}

func (s *accounts) List(ctx context.Context) ([]*model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM account ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *accounts) UpdateLabel(ctx context.Context, id int64, label string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE account SET label = NULLIF($2, '') WHERE id = $1`, id, label)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *accounts) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM account WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *accounts) SetLastSyncAt(ctx context.Context, id int64, at time.Time) error {
	// Guard keeps last_sync_at monotone.
	tag, err := s.pool.Exec(ctx, `
		UPDATE account SET last_sync_at = $2
		WHERE id = $1 AND (last_sync_at IS NULL OR last_sync_at <= $2)`,
		id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already newer; distinguish for callers.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM account WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}
