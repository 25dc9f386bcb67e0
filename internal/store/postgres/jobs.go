package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

type jobs struct {
	pool *pgxpool.Pool
}

func (s *jobs) Create(ctx context.Context, accountID int64, fileName string) (*model.Job, error) {
	j := &model.Job{
		AccountID: accountID,
		FileName:  fileName,
		Status:    model.JobPending,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO import_job (account_id, file_name, status)
		VALUES ($1, NULLIF($2, ''), $3)
		RETURNING id, created_at`,
		accountID, fileName, model.JobPending,
	).Scan(&j.ID, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

const jobColumns = `id, account_id, COALESCE(file_name, ''), status,
	total_games, processed_games, duplicate_games,
	archives_processed, total_archives,
	COALESCE(error_message, ''), created_at, completed_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	j := &model.Job{}
	err := row.Scan(
		&j.ID, &j.AccountID, &j.FileName, &j.Status,
		&j.TotalGames, &j.ProcessedGames, &j.DuplicateGames,
		&j.ArchivesProcessed, &j.TotalArchives,
		&j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

func (s *jobs) Get(ctx context.Context, id int64) (*model.Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM import_job WHERE id = $1`, id))
}

func (s *jobs) ListByAccount(ctx context.Context, accountID int64) ([]*model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM import_job WHERE account_id = $1 ORDER BY created_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// notTerminal guards every mutation: terminal jobs are immutable.
const notTerminal = ` AND status NOT IN ('COMPLETED', 'FAILED')`

func (s *jobs) SetStatus(ctx context.Context, id int64, status model.JobStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET status = $2 WHERE id = $1`+notTerminal, id, status)
	return err
}

func (s *jobs) SetTotalGames(ctx context.Context, id int64, total int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET total_games = $2 WHERE id = $1`+notTerminal, id, total)
	return err
}

func (s *jobs) InitArchives(ctx context.Context, id int64, totalArchives int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET total_archives = $2, archives_processed = 0 WHERE id = $1`+notTerminal,
		id, totalArchives)
	return err
}

func (s *jobs) SetArchivesProcessed(ctx context.Context, id int64, n int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET archives_processed = $2 WHERE id = $1`+notTerminal, id, n)
	return err
}

func (s *jobs) UpdateProgress(ctx context.Context, id int64, processed, duplicates int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET processed_games = $2, duplicate_games = $3 WHERE id = $1`+notTerminal,
		id, processed, duplicates)
	return err
}

func (s *jobs) MarkCompleted(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET status = 'COMPLETED', completed_at = now() WHERE id = $1`+notTerminal, id)
	return err
}

func (s *jobs) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_job SET status = 'FAILED', error_message = left($2, 1000), completed_at = now()
		 WHERE id = $1`+notTerminal,
		id, errorMessage)
	return err
}

func (s *jobs) ExistsActive(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM import_job
			WHERE account_id = $1 AND status IN ('PENDING', 'PROCESSING')
		)`, accountID).Scan(&exists)
	return exists, err
}

func (s *jobs) DeleteByAccount(ctx context.Context, accountID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM import_job WHERE account_id = $1`, accountID)
	return err
}
