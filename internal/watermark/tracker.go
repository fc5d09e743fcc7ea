package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// bootstrapDays is how far back the first ever run reaches when no
// watermark exists yet.
const bootstrapDays = 7

// Tracker computes incremental windows from stored watermarks.
type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// SetNow overrides the clock; tests only.
func (t *Tracker) SetNow(fn func() time.Time) { t.now = fn }

// NextWindow resolves the date window to process for the given process name.
// The window always ends at yesterday: the current day's log is still being
// written and is not safe to aggregate. With an explicit start (backfill)
// the window starts there; otherwise it starts the day after the stored
// watermark, or bootstrapDays ago when none exists.
//
// ok=false means the window is empty ("nothing to do"); callers must treat
// that as success.
func (t *Tracker) NextWindow(ctx context.Context, process string, explicitStart *time.Time) (Window, bool, error) {
	today := truncateDay(t.now().UTC())
	end := today.AddDate(0, 0, -1)

	var start time.Time
	switch {
	case explicitStart != nil:
		start = truncateDay(explicitStart.UTC())
	default:
		wm, err := t.store.Get(ctx, process)
		if err != nil {
			return Window{}, false, fmt.Errorf("read watermark %s: %w", process, err)
		}
		if wm == nil {
			start = today.AddDate(0, 0, -bootstrapDays)
		} else {
			start = wm.LastDate.AddDate(0, 0, 1)
		}
	}

	if start.After(end) {
		return Window{}, false, nil
	}
	return Window{Start: start, End: end}, true, nil
}

// Commit durably advances the watermark to date. Called once per fully
// loaded day, in increasing date order. A commit behind the stored date is
// ignored by the store; that is logged here and not treated as an error.
func (t *Tracker) Commit(ctx context.Context, process string, date time.Time, cursor string) error {
	applied, err := t.store.Commit(ctx, process, truncateDay(date.UTC()), cursor)
	if err != nil {
		return fmt.Errorf("commit watermark %s: %w", process, err)
	}
	if !applied {
		slog.Warn("watermark commit behind stored date ignored",
			"process", process, "date", date.Format(time.DateOnly))
	}
	return nil
}

// Reset drops the stored watermark for process. Only meaningful right after
// the matching summary table has been truncated.
func (t *Tracker) Reset(ctx context.Context, process string) error {
	if err := t.store.Delete(ctx, process); err != nil {
		return fmt.Errorf("reset watermark %s: %w", process, err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
