package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

type games struct {
	pool *pgxpool.Pool
}

func (s *games) Exists(ctx context.Context, accountID int64, pgnHash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM game WHERE account_id = $1 AND pgn_hash = $2
		)`, accountID, pgnHash).Scan(&exists)
	return exists, err
}

func (s *games) Insert(ctx context.Context, g *model.Game) (bool, error) {
	// The unique index arbitrates races; a conflicting row means the
	// game arrived through another path first and is simply a duplicate.
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO game (
			account_id, played_at, result, color,
			time_control_raw, time_control_category,
			eco_code, opening_name, opponent, pgn_hash
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)
		ON CONFLICT (account_id, pgn_hash) DO NOTHING`,
		g.AccountID, g.PlayedAt.UTC(), g.Result, g.Color,
		g.TimeControlRaw, g.TimeControlCategory,
		g.EcoCode, g.OpeningName, g.Opponent, g.PgnHash,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *games) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM game WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

func (s *games) DeleteByAccount(ctx context.Context, accountID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM game WHERE account_id = $1`, accountID)
	return err
}

func (s *games) DailyCounts(ctx context.Context, from, to time.Time, f store.Filter) ([]store.DayCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT (played_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)
		FROM game
		WHERE played_at >= $1 AND played_at < $2
		AND ($3::bigint IS NULL OR account_id = $3)
		AND ($4::text IS NULL OR time_control_category = $4)
		AND ($5::text IS NULL OR color = $5)
		GROUP BY day
		ORDER BY day`,
		from.UTC(), to.UTC(), f.AccountID, tcParam(f), colorParam(f))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DayCount
	for rows.Next() {
		var dc store.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *games) ResultCounts(ctx context.Context, f store.Filter) (map[model.GameResult]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT result, COUNT(*)
		FROM game
		WHERE ($1::bigint IS NULL OR account_id = $1)
		AND ($2::text IS NULL OR time_control_category = $2)
		AND ($3::text IS NULL OR color = $3)
		GROUP BY result`,
		f.AccountID, tcParam(f), colorParam(f))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.GameResult]int64)
	for rows.Next() {
		var result model.GameResult
		var n int64
		if err := rows.Scan(&result, &n); err != nil {
			return nil, err
		}
		out[result] = n
	}
	return out, rows.Err()
}

func (s *games) ColorResultCounts(ctx context.Context, f store.Filter) ([]store.ColorResultCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT color, result, COUNT(*)
		FROM game
		WHERE ($1::bigint IS NULL OR account_id = $1)
		AND ($2::text IS NULL OR time_control_category = $2)
		GROUP BY color, result
		ORDER BY color, result`,
		f.AccountID, tcParam(f))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ColorResultCount
	for rows.Next() {
		var crc store.ColorResultCount
		if err := rows.Scan(&crc.Color, &crc.Result, &crc.Count); err != nil {
			return nil, err
		}
		out = append(out, crc)
	}
	return out, rows.Err()
}

func (s *games) AccountResultCounts(ctx context.Context, accountIDs []int64, f store.Filter) ([]store.AccountResultCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, result, COUNT(*)
		FROM game
		WHERE account_id = ANY($1)
		AND ($2::text IS NULL OR time_control_category = $2)
		GROUP BY account_id, result
		ORDER BY account_id, result`,
		accountIDs, tcParam(f))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AccountResultCount
	for rows.Next() {
		var arc store.AccountResultCount
		if err := rows.Scan(&arc.AccountID, &arc.Result, &arc.Count); err != nil {
			return nil, err
		}
		out = append(out, arc)
	}
	return out, rows.Err()
}

func tcParam(f store.Filter) *string {
	if f.TimeControl == nil {
		return nil
	}
	s := string(*f.TimeControl)
	return &s
}

func colorParam(f store.Filter) *string {
	if f.Color == nil {
		return nil
	}
	s := string(*f.Color)
	return &s
}
