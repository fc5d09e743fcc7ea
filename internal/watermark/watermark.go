package watermark

import (
	"context"
	"time"
)

// Watermark is the last calendar date fully committed for a logical process,
// plus an optional finer-grained cursor within that date.
type Watermark struct {
	ProcessName string    `json:"processName"`
	LastDate    time.Time `json:"lastDate"`
	LastCursor  string    `json:"lastCursor,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists watermarks. Commit must enforce monotonicity itself: an
// earlier date than the stored one is ignored (applied=false), so a stale
// worker can never regress progress.
type Store interface {
	Get(ctx context.Context, process string) (*Watermark, error)
	Commit(ctx context.Context, process string, date time.Time, cursor string) (applied bool, err error)
	// Delete removes the watermark so the next run bootstraps from scratch.
	// Used by the operator clean job after summary tables are truncated.
	Delete(ctx context.Context, process string) error
}

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days lists every day in the window in increasing order.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
