package pgn

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chesslog/chesslog/internal/model"
)

// ParsedGame is the normalized form of one PGN game, relative to the
// account username it was parsed for. All timestamps are UTC.
type ParsedGame struct {
	PlayedAt            time.Time
	Result              model.GameResult
	Color               model.Color
	TimeControlRaw      string
	TimeControlCategory model.TimeControlCategory
	EcoCode             string
	OpeningName         string
	Opponent            string
	PgnHash             string
}

// Valid reports whether the game carries everything ingestion requires.
func (g *ParsedGame) Valid() bool {
	return !g.PlayedAt.IsZero() && g.Result != "" && g.Color != "" && g.PgnHash != ""
}

const (
	dateLayout = "2006.01.02"
	timeLayout = "15:04:05"

	// hashMoveLimit is how much of the collapsed move text feeds the
	// fingerprint. Enough to distinguish real games without hashing
	// entire movetexts.
	hashMoveLimit = 200
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// buildGame assembles a ParsedGame from raw headers and move text.
// Returns nil when username matches neither the White nor Black header.
func buildGame(headers map[string]string, moves, username string) *ParsedGame {
	white := headers["White"]
	black := headers["Black"]

	g := &ParsedGame{}
	switch {
	case white != "" && strings.EqualFold(white, username):
		g.Color = model.ColorWhite
		g.Opponent = black
	case black != "" && strings.EqualFold(black, username):
		g.Color = model.ColorBlack
		g.Opponent = white
	default:
		log.Debug().
			Str("username", username).
			Str("white", white).
			Str("black", black).
			Msg("Username not found in game")
		return nil
	}

	g.Result = resultFor(headers["Result"], g.Color)
	g.PlayedAt = playedAt(headers)
	g.TimeControlRaw = headers["TimeControl"]
	g.TimeControlCategory = CategorizeTimeControl(headers["TimeControl"])
	g.EcoCode = headers["ECO"]
	g.OpeningName = headers["Opening"]
	g.PgnHash = Fingerprint(headers, moves)
	return g
}

// resultFor maps the PGN result token to the player's perspective.
// Unknown tokens, including "*", count as a draw.
func resultFor(token string, color model.Color) model.GameResult {
	switch token {
	case "1-0":
		if color == model.ColorWhite {
			return model.ResultWin
		}
		return model.ResultLoss
	case "0-1":
		if color == model.ColorBlack {
			return model.ResultWin
		}
		return model.ResultLoss
	default:
		return model.ResultDraw
	}
}

// playedAt combines the Date header with UTCTime (Chess.com) or Time
// (Lichess). A missing or unknown ("????.??.??") date falls back to the
// current UTC date; a missing time means midnight.
func playedAt(headers map[string]string) time.Time {
	now := time.Now().UTC()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if dateStr, ok := headers["Date"]; ok && !strings.Contains(dateStr, "?") {
		if d, err := time.ParseInLocation(dateLayout, dateStr, time.UTC); err == nil {
			date = d
		} else {
			log.Debug().Str("date", dateStr).Msg("Failed to parse date")
		}
	}

	timeStr, ok := headers["UTCTime"]
	if !ok {
		timeStr = headers["Time"]
	}
	if timeStr != "" {
		if t, err := time.Parse(timeLayout, timeStr); err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		}
		log.Debug().Str("time", timeStr).Msg("Failed to parse time")
	}
	return date
}

// CategorizeTimeControl buckets a raw TimeControl header value.
// The value is "base+increment" in seconds, "moves/seconds" for
// correspondence, or "-" when unknown.
func CategorizeTimeControl(raw string) model.TimeControlCategory {
	if raw == "" || raw == "-" {
		return model.TCUnknown
	}
	if strings.Contains(raw, "/") {
		return model.TCCorrespondence
	}

	base := raw
	if i := strings.IndexAny(raw, "+/"); i >= 0 {
		base = raw[:i]
	}
	seconds, err := strconv.Atoi(base)
	if err != nil {
		return model.TCUnknown
	}

	switch {
	case seconds < 30:
		return model.TCUltraBullet
	case seconds < 180:
		return model.TCBullet
	case seconds < 600:
		return model.TCBlitz
	case seconds < 1800:
		return model.TCRapid
	default:
		return model.TCClassical
	}
}

// Fingerprint derives the dedup hash for a game: SHA-256 over the Date,
// White, Black and Result headers plus the leading portion of the
// whitespace-collapsed move text, as lowercase hex.
func Fingerprint(headers map[string]string, moves string) string {
	var b strings.Builder
	b.WriteString(headers["Date"])
	b.WriteString(headers["White"])
	b.WriteString(headers["Black"])
	b.WriteString(headers["Result"])

	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(moves, " "))
	if len(collapsed) > hashMoveLimit {
		collapsed = collapsed[:hashMoveLimit]
	}
	b.WriteString(collapsed)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
