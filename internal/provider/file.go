package provider

import (
	"io"
	"os"

	"github.com/chesslog/chesslog/internal/pgn"
)

// FileSource reads games from an uploaded PGN file on disk. Unlike the
// API sources the total game count is known up front, so progress can
// be reported against a real denominator.
type FileSource struct {
	Path string
}

// Count returns the number of games in the file without parsing them.
func (s FileSource) Count() (int, error) {
	return pgn.CountGames(s.Path)
}

// Open returns the file contents for streaming parse. The caller must
// close the returned reader.
func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}
