package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultChessComBaseURL is the Chess.com published-data API root.
const DefaultChessComBaseURL = "https://api.chess.com"

// archivePattern extracts the year and month from a monthly archive URL.
var archivePattern = regexp.MustCompile(`/games/(\d{4})/(\d{2})$`)

// ChessComSource lists and fetches a player's monthly game archives.
type ChessComSource struct {
	fetcher *Fetcher
	baseURL string
	logger  zerolog.Logger
}

// ChessComOption configures a ChessComSource.
type ChessComOption func(*ChessComSource)

// WithChessComBaseURL overrides the API root, for tests.
func WithChessComBaseURL(baseURL string) ChessComOption {
	return func(s *ChessComSource) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithChessComLogger sets a custom logger.
func WithChessComLogger(logger zerolog.Logger) ChessComOption {
	return func(s *ChessComSource) {
		s.logger = logger
	}
}

// NewChessComSource creates a source backed by the given fetcher.
func NewChessComSource(fetcher *Fetcher, opts ...ChessComOption) *ChessComSource {
	s := &ChessComSource{
		fetcher: fetcher,
		baseURL: DefaultChessComBaseURL,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlayerExists reports whether the username is a known Chess.com player.
// A 404 from the profile endpoint means unknown; any other failure is an
// error the caller must not treat as absence.
func (s *ChessComSource) PlayerExists(ctx context.Context, username string) (bool, error) {
	url := fmt.Sprintf("%s/pub/player/%s", s.baseURL, strings.ToLower(username))
	if _, err := s.fetcher.FetchText(ctx, url, "application/json"); err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Archives lists the player's monthly archive URLs, oldest first, and
// filters out months already covered by a previous sync. When since is
// set, only archives for that calendar month or later are returned.
// URLs that do not match the expected shape are kept rather than
// silently skipped.
func (s *ChessComSource) Archives(ctx context.Context, username string, since *time.Time) ([]string, error) {
	url := fmt.Sprintf("%s/pub/player/%s/games/archives", s.baseURL, strings.ToLower(username))
	body, err := s.fetcher.FetchText(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Archives []string `json:"archives"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode archive list: %w", err)
	}
	return filterArchives(payload.Archives, since), nil
}

func filterArchives(urls []string, since *time.Time) []string {
	if since == nil {
		return urls
	}
	cutoff := since.UTC().Year()*12 + int(since.UTC().Month()) - 1
	var out []string
	for _, u := range urls {
		m := archivePattern.FindStringSubmatch(u)
		if m == nil {
			out = append(out, u)
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if year*12+month-1 >= cutoff {
			out = append(out, u)
		}
	}
	return out
}

// ArchivePGNs fetches one monthly archive and returns the PGN text of
// each game in it. Games without PGN payloads are skipped.
func (s *ChessComSource) ArchivePGNs(ctx context.Context, archiveURL string) ([]string, error) {
	body, err := s.fetcher.FetchText(ctx, archiveURL, "application/json")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Games []struct {
			PGN string `json:"pgn"`
		} `json:"games"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode archive %s: %w", archiveURL, err)
	}

	pgns := make([]string, 0, len(payload.Games))
	for _, g := range payload.Games {
		if g.PGN == "" {
			s.logger.Debug().Str("archive", archiveURL).Msg("Skipping game without PGN")
			continue
		}
		pgns = append(pgns, g.PGN)
	}
	return pgns, nil
}
