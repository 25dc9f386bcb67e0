package model

import "time"

// Job tracks one logical import of games for one account, from one source.
// The coordinator owns a running job; pollers only ever read it. Counters
// are monotone non-decreasing while the job is PROCESSING and frozen once
// it reaches a terminal status.
type Job struct {
	ID                int64      `json:"id"`
	AccountID         int64      `json:"account_id"`
	FileName          string     `json:"file_name,omitempty"`
	Status            JobStatus  `json:"status"`
	TotalGames        *int       `json:"total_games"`
	ProcessedGames    int        `json:"processed_games"`
	DuplicateGames    int        `json:"duplicate_games"`
	ArchivesProcessed *int       `json:"archives_processed"`
	TotalArchives     *int       `json:"total_archives"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at"`
}

// ProgressPercent derives floor(100*processed/total) when a total is
// known and positive. Streaming sources have no advance total, so the
// result is nil until the first counter flush sets one.
func (j *Job) ProgressPercent() *int {
	if j.TotalGames == nil || *j.TotalGames <= 0 {
		return nil
	}
	pct := j.ProcessedGames * 100 / *j.TotalGames
	if pct > 100 {
		pct = 100
	}
	return &pct
}
