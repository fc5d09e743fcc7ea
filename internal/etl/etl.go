package etl

import "time"

type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed:
		return true
	}
	return false
}

type Kind string

const (
	KindFullRun  Kind = "full_run"
	KindBackfill Kind = "backfill"
	KindClean    Kind = "clean"
)

func ValidKind(k Kind) bool {
	switch k {
	case KindFullRun, KindBackfill, KindClean:
		return true
	}
	return false
}

// Job is one row of the ledger: a single ETL invocation and its lifecycle.
// Rows are created by the dispatcher in queued state and mutated only by the
// worker that claimed them, except for the reaper's running->failed write.
type Job struct {
	ID                 int64      `json:"id"`
	Kind               Kind       `json:"kind"`
	RequestedStartDate *time.Time `json:"requestedStartDate,omitempty"`
	RequestedEndDate   *time.Time `json:"requestedEndDate,omitempty"`
	ExtractedStartDate *time.Time `json:"extractedStartDate,omitempty"`
	ExtractedEndDate   *time.Time `json:"extractedEndDate,omitempty"`
	LastOffset         int64      `json:"lastOffset"`
	RowCount           int64      `json:"rowCount"`
	Concurrency        int        `json:"concurrency"`
	IncludeLogs        bool       `json:"includeLogs,omitempty"`
	Status             Status     `json:"status"`
	Message            string     `json:"message,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty"`
	DurationSeconds    *int64     `json:"durationSeconds,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}
