package model

import (
	"strings"
	"time"
)

// Account is a player identity on a chess platform. A user can track
// several accounts across platforms; (platform, lowercase username)
// identifies one.
type Account struct {
	ID         int64      `json:"id"`
	Platform   Platform   `json:"platform"`
	Username   string     `json:"username"`
	Label      string     `json:"label,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// MatchesUsername compares case-insensitively, the way PGN headers are
// matched against the account holder.
func (a *Account) MatchesUsername(name string) bool {
	return strings.EqualFold(a.Username, name)
}
