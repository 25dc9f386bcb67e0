package provider

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultLichessBaseURL is the Lichess API root.
const DefaultLichessBaseURL = "https://lichess.org"

// lichessAccept asks for the raw PGN export format.
const lichessAccept = "application/x-chess-pgn"

// LichessSource streams a player's full game export in one request.
type LichessSource struct {
	fetcher *Fetcher
	baseURL string
}

// LichessOption configures a LichessSource.
type LichessOption func(*LichessSource)

// WithLichessBaseURL overrides the API root, for tests.
func WithLichessBaseURL(baseURL string) LichessOption {
	return func(s *LichessSource) {
		s.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewLichessSource creates a source backed by the given fetcher.
func NewLichessSource(fetcher *Fetcher, opts ...LichessOption) *LichessSource {
	s := &LichessSource{
		fetcher: fetcher,
		baseURL: DefaultLichessBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export opens a streaming PGN export of the player's games. When since
// is set, only games played at or after that instant are requested, so
// incremental syncs transfer just the new months of history. The caller
// must close the returned stream.
func (s *LichessSource) Export(ctx context.Context, username string, since *time.Time) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("moves", "true")
	q.Set("tags", "true")
	q.Set("clocks", "false")
	q.Set("evals", "false")
	q.Set("opening", "true")
	if since != nil {
		q.Set("since", strconv.FormatInt(since.UTC().UnixMilli(), 10))
	}
	u := fmt.Sprintf("%s/api/games/user/%s?%s", s.baseURL, strings.ToLower(username), q.Encode())
	return s.fetcher.FetchStream(ctx, u, lichessAccept)
}
