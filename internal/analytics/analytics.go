// Package analytics answers read-side questions over the ingested games:
// activity calendars and win/loss/draw breakdowns, optionally filtered
// by account, time control or color.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/chesslog/chesslog/internal/model"
	"github.com/chesslog/chesslog/internal/store"
)

// ErrInvalidRange is returned when the calendar range is empty or inverted.
var ErrInvalidRange = errors.New("analytics: from must be before to")

// Service computes aggregates over the game store.
type Service struct {
	games store.GameStore
}

// NewService creates a Service over the given game store.
func NewService(games store.GameStore) *Service {
	return &Service{games: games}
}

// Calendar returns one entry per UTC day in [from, to), including days
// with zero games, so clients can render a contiguous heatmap.
func (s *Service) Calendar(ctx context.Context, from, to time.Time, f store.Filter) ([]store.DayCount, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}

	counts, err := s.games.DailyCounts(ctx, from, to, f)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time]int, len(counts))
	for _, dc := range counts {
		byDay[dc.Day.UTC().Truncate(24*time.Hour)] = dc.Count
	}

	var out []store.DayCount
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		out = append(out, store.DayCount{Day: day, Count: byDay[day]})
	}
	return out, nil
}

// ResultBreakdown is a win/loss/draw tally with a derived win rate.
type ResultBreakdown struct {
	Games   int64   `json:"games"`
	Wins    int64   `json:"wins"`
	Losses  int64   `json:"losses"`
	Draws   int64   `json:"draws"`
	WinRate float64 `json:"win_rate"`
}

func breakdown(counts map[model.GameResult]int64) ResultBreakdown {
	b := ResultBreakdown{
		Wins:   counts[model.ResultWin],
		Losses: counts[model.ResultLoss],
		Draws:  counts[model.ResultDraw],
	}
	b.Games = b.Wins + b.Losses + b.Draws
	if b.Games > 0 {
		b.WinRate = float64(b.Wins) / float64(b.Games)
	}
	return b
}

// Stats is the overall breakdown plus per-color splits.
type Stats struct {
	ResultBreakdown
	White ResultBreakdown `json:"white"`
	Black ResultBreakdown `json:"black"`
}

// Stats aggregates results under the filter. The filter's Color field
// is ignored here; both per-color splits are always reported.
func (s *Service) Stats(ctx context.Context, f store.Filter) (*Stats, error) {
	f.Color = nil

	overall, err := s.games.ResultCounts(ctx, f)
	if err != nil {
		return nil, err
	}
	byColor, err := s.games.ColorResultCounts(ctx, f)
	if err != nil {
		return nil, err
	}

	white := make(map[model.GameResult]int64)
	black := make(map[model.GameResult]int64)
	for _, crc := range byColor {
		switch crc.Color {
		case model.ColorWhite:
			white[crc.Result] = crc.Count
		case model.ColorBlack:
			black[crc.Result] = crc.Count
		}
	}

	return &Stats{
		ResultBreakdown: breakdown(overall),
		White:           breakdown(white),
		Black:           breakdown(black),
	}, nil
}

// AccountStats is one account's breakdown in a multi-account comparison.
type AccountStats struct {
	AccountID int64 `json:"account_id"`
	ResultBreakdown
}

// StatsByAccount returns one breakdown per requested account, in request
// order with duplicates collapsed. Accounts without matching games get a
// zero breakdown rather than being dropped. The filter's AccountID and
// Color fields are ignored.
func (s *Service) StatsByAccount(ctx context.Context, accountIDs []int64, f store.Filter) ([]AccountStats, error) {
	f.AccountID = nil
	f.Color = nil

	rows, err := s.games.AccountResultCounts(ctx, accountIDs, f)
	if err != nil {
		return nil, err
	}

	byAccount := make(map[int64]map[model.GameResult]int64)
	for _, arc := range rows {
		if byAccount[arc.AccountID] == nil {
			byAccount[arc.AccountID] = make(map[model.GameResult]int64)
		}
		byAccount[arc.AccountID][arc.Result] = arc.Count
	}

	out := make([]AccountStats, 0, len(accountIDs))
	seen := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, AccountStats{
			AccountID:       id,
			ResultBreakdown: breakdown(byAccount[id]),
		})
	}
	return out, nil
}
