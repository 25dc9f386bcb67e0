// Package store defines the persistence interfaces the ingestion pipeline
// and read API depend on. Two implementations exist: a PostgreSQL store
// (package postgres) for real deployments and an in-memory store (package
// memory) for tests and database-less development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chesslog/chesslog/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateAccount is returned when (platform, username) is taken.
	ErrDuplicateAccount = errors.New("store: account already exists")
)

// AccountStore persists player identities.
type AccountStore interface {
	Create(ctx context.Context, platform model.Platform, username, label string) (*model.Account, error)
	Get(ctx context.Context, id int64) (*model.Account, error)
	List(ctx context.Context) ([]*model.Account, error)
	UpdateLabel(ctx context.Context, id int64, label string) error
	Delete(ctx context.Context, id int64) error
	// SetLastSyncAt records a successful sync. The timestamp never moves
	// backwards; stores ignore updates older than the current value.
	SetLastSyncAt(ctx context.Context, id int64, at time.Time) error
}

// Filter narrows analytics queries. Nil fields match everything.
type Filter struct {
	AccountID   *int64
	TimeControl *model.TimeControlCategory
	Color       *model.Color
}

// DayCount is one calendar day's game count.
type DayCount struct {
	Day   time.Time `json:"date"`
	Count int       `json:"count"`
}

// ColorResultCount is one (color, result) bucket.
type ColorResultCount struct {
	Color  model.Color
	Result model.GameResult
	Count  int64
}

// AccountResultCount is one (account, result) bucket.
type AccountResultCount struct {
	AccountID int64
	Result    model.GameResult
	Count     int64
}

// GameStore persists ingested games and answers the dedup question.
type GameStore interface {
	// Exists reports whether (accountID, pgnHash) is already stored.
	Exists(ctx context.Context, accountID int64, pgnHash string) (bool, error)
	// Insert stores the game. It returns false, nil when the unique
	// (account_id, pgn_hash) constraint rejects the row; that is a
	// duplicate, not an error.
	Insert(ctx context.Context, g *model.Game) (bool, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
	DeleteByAccount(ctx context.Context, accountID int64) error

	// Read-side analytics.
	DailyCounts(ctx context.Context, from, to time.Time, f Filter) ([]DayCount, error)
	ResultCounts(ctx context.Context, f Filter) (map[model.GameResult]int64, error)
	ColorResultCounts(ctx context.Context, f Filter) ([]ColorResultCount, error)
	// AccountResultCounts groups results by account for the given ids.
	// The filter's AccountID field is ignored; the id list is the scope.
	AccountResultCounts(ctx context.Context, accountIDs []int64, f Filter) ([]AccountResultCount, error)
}

// JobStore persists import jobs. Every mutation commits on its own so a
// poller reading concurrently always sees consistent, fresh counters.
// Mutations against a job in a terminal status are silently ignored.
type JobStore interface {
	Create(ctx context.Context, accountID int64, fileName string) (*model.Job, error)
	Get(ctx context.Context, id int64) (*model.Job, error)
	ListByAccount(ctx context.Context, accountID int64) ([]*model.Job, error)
	SetStatus(ctx context.Context, id int64, status model.JobStatus) error
	SetTotalGames(ctx context.Context, id int64, total int) error
	// InitArchives enters the archive-fetch phase: sets total_archives
	// and zeroes archives_processed.
	InitArchives(ctx context.Context, id int64, totalArchives int) error
	SetArchivesProcessed(ctx context.Context, id int64, n int) error
	UpdateProgress(ctx context.Context, id int64, processed, duplicates int) error
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	// ExistsActive reports whether the account has a PENDING or
	// PROCESSING job. Used to forbid concurrent imports per account.
	ExistsActive(ctx context.Context, accountID int64) (bool, error)
	DeleteByAccount(ctx context.Context, accountID int64) error
}
