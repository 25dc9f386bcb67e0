package model

// Platform identifies the chess site an account belongs to.
type Platform string

const (
	PlatformChessCom Platform = "CHESS_COM"
	PlatformLichess  Platform = "LICHESS"
	PlatformOther    Platform = "OTHER"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformChessCom, PlatformLichess, PlatformOther:
		return true
	}
	return false
}

// Color is the side the account holder played.
type Color string

const (
	ColorWhite Color = "WHITE"
	ColorBlack Color = "BLACK"
)

// GameResult is the outcome from the account holder's perspective.
type GameResult string

const (
	ResultWin  GameResult = "WIN"
	ResultLoss GameResult = "LOSS"
	ResultDraw GameResult = "DRAW"
)

// TimeControlCategory buckets raw PGN time controls into standard speeds.
type TimeControlCategory string

const (
	TCUltraBullet    TimeControlCategory = "ULTRABULLET"
	TCBullet         TimeControlCategory = "BULLET"
	TCBlitz          TimeControlCategory = "BLITZ"
	TCRapid          TimeControlCategory = "RAPID"
	TCClassical      TimeControlCategory = "CLASSICAL"
	TCCorrespondence TimeControlCategory = "CORRESPONDENCE"
	TCUnknown        TimeControlCategory = "UNKNOWN"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}
