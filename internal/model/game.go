package model

import "time"

// Game is one ingested game, written once after a successful dedup check
// and never updated. PgnHash is the 64-char hex SHA-256 fingerprint used
// for duplicate detection within an account.
type Game struct {
	ID                  int64               `json:"id"`
	AccountID           int64               `json:"account_id"`
	PlayedAt            time.Time           `json:"played_at"`
	Result              GameResult          `json:"result"`
	Color               Color               `json:"color"`
	TimeControlRaw      string              `json:"time_control_raw,omitempty"`
	TimeControlCategory TimeControlCategory `json:"time_control_category"`
	EcoCode             string              `json:"eco_code,omitempty"`
	OpeningName         string              `json:"opening_name,omitempty"`
	Opponent            string              `json:"opponent,omitempty"`
	PgnHash             string              `json:"pgn_hash"`
	CreatedAt           time.Time           `json:"created_at"`
}
