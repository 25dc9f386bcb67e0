// Package memory provides in-memory store implementations. They back the
// unit tests and let the server run without a database configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

// DB holds all records behind one mutex. Per-entity store views share it;
// ingestion throughput against it is bounded by parsing, not lock
// contention.
type DB struct {
	mu     sync.RWMutex
	nextID int64

	accounts map[int64]*model.Account
	games    map[int64]*model.Game
	jobs     map[int64]*model.Job
	// gameKeys mirrors the (account_id, pgn_hash) unique index.
	gameKeys map[gameKey]struct{}
}

type gameKey struct {
	accountID int64
	pgnHash   string
}

// New creates an empty database.
func New() *DB {
	return &DB{
		accounts: make(map[int64]*model.Account),
		games:    make(map[int64]*model.Game),
		jobs:     make(map[int64]*model.Job),
		gameKeys: make(map[gameKey]struct{}),
	}
}

// Accounts returns the store.AccountStore view.
func (d *DB) Accounts() store.AccountStore { return &accounts{d} }

// Games returns the store.GameStore view.
func (d *DB) Games() store.GameStore { return &games{d} }

// Jobs returns the store.JobStore view.
func (d *DB) Jobs() store.JobStore { return &jobs{d} }

func (d *DB) nextSequence() int64 {
	d.nextID++
	return d.nextID
}

type accounts struct{ db *DB }

func (s *accounts) Create(_ context.Context, platform model.Platform, username, label string) (*model.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, a := range s.db.accounts {
		if a.Platform == platform && strings.EqualFold(a.Username, username) {
			return nil, store.ErrDuplicateAccount
		}
	}

	a := &model.Account{
		ID:        s.db.nextSequence(),
		Platform:  platform,
		Username:  username,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	s.db.accounts[a.ID] = a
	return cloneAccount(a), nil
}

func (s *accounts) Get(_ context.Context, id int64) (*model.Account, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (s *accounts) List(_ context.Context) ([]*model.Account, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]*model.Account, 0, len(s.db.accounts))
	for _, a := range s.db.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *accounts) UpdateLabel(_ context.Context, id int64, label string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Label = label
	return nil
}

func (s *accounts) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.db.accounts, id)
	return nil
}

func (s *accounts) SetLastSyncAt(_ context.Context, id int64, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.LastSyncAt != nil && at.Before(*a.LastSyncAt) {
		return nil
	}
	at = at.UTC()
	a.LastSyncAt = &at
	return nil
}

type games struct{ db *DB }

func (s *games) Exists(_ context.Context, accountID int64, pgnHash string) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	_, ok := s.db.gameKeys[gameKey{accountID, pgnHash}]
	return ok, nil
}

func (s *games) Insert(_ context.Context, g *model.Game) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := gameKey{g.AccountID, g.PgnHash}
	if _, ok := s.db.gameKeys[key]; ok {
		return false, nil
	}

	stored := *g
	stored.ID = s.db.nextSequence()
	stored.CreatedAt = time.Now().UTC()
	s.db.games[stored.ID] = &stored
	s.db.gameKeys[key] = struct{}{}
	return true, nil
}

func (s *games) CountByAccount(_ context.Context, accountID int64) (int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var n int64
	for _, g := range s.db.games {
		if g.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

func (s *games) DeleteByAccount(_ context.Context, accountID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, g := range s.db.games {
		if g.AccountID == accountID {
			delete(s.db.games, id)
			delete(s.db.gameKeys, gameKey{g.AccountID, g.PgnHash})
		}
	}
	return nil
}

func (s *games) DailyCounts(_ context.Context, from, to time.Time, f store.Filter) ([]store.DayCount, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	byDay := make(map[time.Time]int)
	for _, g := range s.db.games {
		if g.PlayedAt.Before(from) || !g.PlayedAt.Before(to) || !matches(g, f) {
			continue
		}
		day := time.Date(g.PlayedAt.Year(), g.PlayedAt.Month(), g.PlayedAt.Day(), 0, 0, 0, 0, time.UTC)
		byDay[day]++
	}

	out := make([]store.DayCount, 0, len(byDay))
	for day, count := range byDay {
		out = append(out, store.DayCount{Day: day, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *games) ResultCounts(_ context.Context, f store.Filter) (map[model.GameResult]int64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make(map[model.GameResult]int64)
	for _, g := range s.db.games {
		if matches(g, f) {
			out[g.Result]++
		}
	}
	return out, nil
}

func (s *games) ColorResultCounts(_ context.Context, f store.Filter) ([]store.ColorResultCount, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	type bucket struct {
		color  model.Color
		result model.GameResult
	}
	counts := make(map[bucket]int64)
	for _, g := range s.db.games {
		if matches(g, f) {
			counts[bucket{g.Color, g.Result}]++
		}
	}

	out := make([]store.ColorResultCount, 0, len(counts))
	for b, n := range counts {
		out = append(out, store.ColorResultCount{Color: b.color, Result: b.result, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Color != out[j].Color {
			return out[i].Color < out[j].Color
		}
		return out[i].Result < out[j].Result
	})
	return out, nil
}

func (s *games) AccountResultCounts(_ context.Context, accountIDs []int64, f store.Filter) ([]store.AccountResultCount, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	wanted := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		wanted[id] = struct{}{}
	}
	f.AccountID = nil

	type bucket struct {
		accountID int64
		result    model.GameResult
	}
	counts := make(map[bucket]int64)
	for _, g := range s.db.games {
		if _, ok := wanted[g.AccountID]; !ok {
			continue
		}
		if matches(g, f) {
			counts[bucket{g.AccountID, g.Result}]++
		}
	}

	out := make([]store.AccountResultCount, 0, len(counts))
	for b, n := range counts {
		out = append(out, store.AccountResultCount{AccountID: b.accountID, Result: b.result, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].Result < out[j].Result
	})
	return out, nil
}

func matches(g *model.Game, f store.Filter) bool {
	if f.AccountID != nil && g.AccountID != *f.AccountID {
		return false
	}
	if f.TimeControl != nil && g.TimeControlCategory != *f.TimeControl {
		return false
	}
	if f.Color != nil && g.Color != *f.Color {
		return false
	}
	return true
}

type jobs struct{ db *DB }

func (s *jobs) Create(_ context.Context, accountID int64, fileName string) (*model.Job, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	j := &model.Job{
		ID:        s.db.nextSequence(),
		AccountID: accountID,
		FileName:  fileName,
		Status:    model.JobPending,
		CreatedAt: time.Now().UTC(),
	}
	s.db.jobs[j.ID] = j
	return cloneJob(j), nil
}

func (s *jobs) Get(_ context.Context, id int64) (*model.Job, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	j, ok := s.db.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(j), nil
}

func (s *jobs) ListByAccount(_ context.Context, accountID int64) ([]*model.Job, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	var out []*model.Job
	for _, j := range s.db.jobs {
		if j.AccountID == accountID {
			out = append(out, cloneJob(j))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// mutate applies fn to a live, non-terminal job. Terminal jobs are
// frozen: the update is dropped without error.
func (s *jobs) mutate(id int64, fn func(*model.Job)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	j, ok := s.db.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.Status.Terminal() {
		return nil
	}
	fn(j)
	return nil
}

func (s *jobs) SetStatus(_ context.Context, id int64, status model.JobStatus) error {
	return s.mutate(id, func(j *model.Job) {
		j.Status = status
	})
}

func (s *jobs) SetTotalGames(_ context.Context, id int64, total int) error {
	return s.mutate(id, func(j *model.Job) {
		j.TotalGames = &total
	})
}

func (s *jobs) InitArchives(_ context.Context, id int64, totalArchives int) error {
	return s.mutate(id, func(j *model.Job) {
		zero := 0
		j.TotalArchives = &totalArchives
		j.ArchivesProcessed = &zero
	})
}

func (s *jobs) SetArchivesProcessed(_ context.Context, id int64, n int) error {
	return s.mutate(id, func(j *model.Job) {
		j.ArchivesProcessed = &n
	})
}

func (s *jobs) UpdateProgress(_ context.Context, id int64, processed, duplicates int) error {
	return s.mutate(id, func(j *model.Job) {
		j.ProcessedGames = processed
		j.DuplicateGames = duplicates
	})
}

func (s *jobs) MarkCompleted(_ context.Context, id int64) error {
	return s.mutate(id, func(j *model.Job) {
		now := time.Now().UTC()
		j.Status = model.JobCompleted
		j.CompletedAt = &now
	})
}

func (s *jobs) MarkFailed(_ context.Context, id int64, errorMessage string) error {
	return s.mutate(id, func(j *model.Job) {
		now := time.Now().UTC()
		j.Status = model.JobFailed
		j.ErrorMessage = errorMessage
		j.CompletedAt = &now
	})
}

func (s *jobs) ExistsActive(_ context.Context, accountID int64) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, j := range s.db.jobs {
		if j.AccountID == accountID && !j.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *jobs) DeleteByAccount(_ context.Context, accountID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for id, j := range s.db.jobs {
		if j.AccountID == accountID {
			delete(s.db.jobs, id)
		}
	}
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	out := *a
	if a.LastSyncAt != nil {
		t := *a.LastSyncAt
		out.LastSyncAt = &t
	}
	return &out
}

func cloneJob(j *model.Job) *model.Job {
	out := *j
	out.TotalGames = cloneInt(j.TotalGames)
	out.ArchivesProcessed = cloneInt(j.ArchivesProcessed)
	out.TotalArchives = cloneInt(j.TotalArchives)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
