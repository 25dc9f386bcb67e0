// Package pgn implements a streaming, line-oriented PGN reader tuned for
// bulk ingestion. It extracts tag-pair headers and raw move text one game
// at a time without materializing the whole input, and normalizes each
// game into a ParsedGame relative to a single account username.
package pgn

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// headerPattern matches a PGN tag pair on a trimmed line: [Tag "value"].
var headerPattern = regexp.MustCompile(`^\[([A-Za-z]+)\s+"([^"]*)"\]$`)

// maxLineBytes bounds a single PGN line. Movetext for a long game fits
// well within this; anything larger is garbage input.
const maxLineBytes = 1 << 20

// CountGames counts games in a PGN file by counting "[Event " tags at
// line start, without parsing. Used for progress totals on file uploads.
func CountGames(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := newScanner(f)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "[Event ") {
			count++
		}
	}
	return count, scanner.Err()
}

// ParseStream reads games from r and calls emit once per valid game.
// Malformed or foreign games (where username matches neither side) are
// skipped; they never abort the stream. Returns the number of games
// emitted.
//
// Providers do not always separate games with a blank line, so a header
// line appearing while move text is being collected starts a new game.
func ParseStream(r io.Reader, username string, emit func(*ParsedGame)) (int, error) {
	emitted := 0
	headers := make(map[string]string)
	var moves strings.Builder
	inMoves := false

	flush := func() {
		if len(headers) == 0 {
			return
		}
		if g := buildGame(headers, moves.String(), username); g != nil && g.Valid() {
			emit(g)
			emitted++
		}
		headers = make(map[string]string)
		moves.Reset()
		inMoves = false
	}

	scanner := newScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			// Blank line ends the move section, and with it the game.
			// After headers it ends the tag section instead, so a
			// moveless game still flushes when the next one starts.
			if inMoves {
				flush()
			} else if len(headers) > 0 {
				inMoves = true
			}
			continue
		}

		if strings.HasPrefix(line, "[") {
			if inMoves {
				// Missing inter-game blank line; this header opens the
				// next game.
				flush()
			}
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				headers[m[1]] = m[2]
			}
			continue
		}

		inMoves = true
		moves.WriteString(line)
		moves.WriteByte(' ')
	}
	if err := scanner.Err(); err != nil {
		return emitted, err
	}

	// Trailing game without a final blank line.
	flush()
	return emitted, nil
}

// ParseOne parses a single already-delimited PGN string, as returned per
// game by the Chess.com archive API. Returns nil when the game does not
// involve username or is otherwise unusable.
func ParseOne(pgnText, username string) *ParsedGame {
	headers := make(map[string]string)
	var moves strings.Builder

	for _, line := range strings.Split(pgnText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				headers[m[1]] = m[2]
			}
			continue
		}
		moves.WriteString(line)
		moves.WriteByte(' ')
	}

	g := buildGame(headers, moves.String(), username)
	if g == nil || !g.Valid() {
		log.Debug().Str("username", username).Msg("Skipping unusable game")
		return nil
	}
	return g
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return scanner
}
