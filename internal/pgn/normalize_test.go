package pgn

import (
	"testing"
	"time"

	"github.com/chesslog/chesslog/internal/model"
)

func TestCategorizeTimeControl(t *testing.T) {
	tests := []struct {
		raw      string
		expected model.TimeControlCategory
	}{
		{"15", model.TCUltraBullet},
		{"60", model.TCBullet},
		{"180", model.TCBlitz},
		{"180+2", model.TCBlitz},
		{"600", model.TCRapid},
		{"1800", model.TCClassical},
		{"1/86400", model.TCCorrespondence},
		{"-", model.TCUnknown},
		{"", model.TCUnknown},
		{"abc", model.TCUnknown},
	}

	for _, tt := range tests {
		if got := CategorizeTimeControl(tt.raw); got != tt.expected {
			t.Errorf("CategorizeTimeControl(%q): expected %s, got %s", tt.raw, tt.expected, got)
		}
	}
}

func TestResultFromPlayerPerspective(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		username string
		color    model.Color
		result   model.GameResult
	}{
		{
			name:     "white loses",
			headers:  map[string]string{"White": "me", "Black": "you", "Result": "0-1"},
			username: "me",
			color:    model.ColorWhite,
			result:   model.ResultLoss,
		},
		{
			name:     "white wins",
			headers:  map[string]string{"White": "me", "Black": "you", "Result": "1-0"},
			username: "me",
			color:    model.ColorWhite,
			result:   model.ResultWin,
		},
		{
			name:     "black wins",
			headers:  map[string]string{"White": "you", "Black": "me", "Result": "0-1"},
			username: "me",
			color:    model.ColorBlack,
			result:   model.ResultWin,
		},
		{
			name:     "draw",
			headers:  map[string]string{"White": "me", "Black": "you", "Result": "1/2-1/2"},
			username: "me",
			color:    model.ColorWhite,
			result:   model.ResultDraw,
		},
		{
			name:     "unterminated game counts as draw",
			headers:  map[string]string{"White": "me", "Black": "you", "Result": "*"},
			username: "me",
			color:    model.ColorWhite,
			result:   model.ResultDraw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := buildGame(tt.headers, "1. e4 e5", tt.username)
			if g == nil {
				t.Fatal("expected game, got nil")
			}
			if g.Color != tt.color {
				t.Errorf("expected color %s, got %s", tt.color, g.Color)
			}
			if g.Result != tt.result {
				t.Errorf("expected result %s, got %s", tt.result, g.Result)
			}
		})
	}
}

func TestUsernameMatchIsCaseInsensitive(t *testing.T) {
	headers := map[string]string{"White": "Alice", "Black": "Bob", "Result": "1-0"}

	g := buildGame(headers, "1. d4 d5", "alice")
	if g == nil {
		t.Fatal("expected game, got nil")
	}
	if g.Color != model.ColorWhite {
		t.Errorf("expected WHITE, got %s", g.Color)
	}
	if g.Opponent != "Bob" {
		t.Errorf("expected opponent Bob, got %q", g.Opponent)
	}
}

func TestUsernameNotInGame(t *testing.T) {
	headers := map[string]string{"White": "Alice", "Black": "Bob", "Result": "1-0"}
	if g := buildGame(headers, "1. d4 d5", "carol"); g != nil {
		t.Errorf("expected nil for foreign game, got %+v", g)
	}
}

func TestPlayedAtCombinesDateAndUTCTime(t *testing.T) {
	headers := map[string]string{
		"White": "a", "Black": "b", "Result": "1-0",
		"Date": "2024.06.15", "UTCTime": "13:45:07",
	}
	g := buildGame(headers, "1. e4", "a")
	if g == nil {
		t.Fatal("expected game")
	}
	want := time.Date(2024, 6, 15, 13, 45, 7, 0, time.UTC)
	if !g.PlayedAt.Equal(want) {
		t.Errorf("expected %v, got %v", want, g.PlayedAt)
	}
}

func TestPlayedAtUnknownDateFallsBackToToday(t *testing.T) {
	headers := map[string]string{
		"White": "a", "Black": "b", "Result": "1-0", "Date": "????.??.??",
	}
	g := buildGame(headers, "1. e4", "a")
	if g == nil {
		t.Fatal("expected game")
	}
	now := time.Now().UTC()
	if g.PlayedAt.Year() != now.Year() || g.PlayedAt.YearDay() != now.YearDay() {
		t.Errorf("expected today's date, got %v", g.PlayedAt)
	}
	if g.PlayedAt.Hour() != 0 || g.PlayedAt.Minute() != 0 {
		t.Errorf("expected midnight, got %v", g.PlayedAt)
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	headers := map[string]string{
		"Date": "2024.01.01", "White": "a", "Black": "b", "Result": "1-0",
	}
	h1 := Fingerprint(headers, "1. e4 e5 2. Nf3")
	h2 := Fingerprint(headers, "1. e4 e5 2. Nf3")
	if h1 != h2 {
		t.Errorf("identical inputs hashed differently: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestFingerprintCollapsesWhitespace(t *testing.T) {
	headers := map[string]string{"Date": "2024.01.01", "White": "a", "Black": "b", "Result": "1-0"}
	h1 := Fingerprint(headers, "1. e4  e5\n2. Nf3 ")
	h2 := Fingerprint(headers, "1. e4 e5 2. Nf3")
	if h1 != h2 {
		t.Error("whitespace variation changed the fingerprint")
	}
}
