package etl

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher accepts run requests and records them in the ledger. The ledger
// row, not any in-process flag, is what prevents overlapping runs: insertion
// is conditional on no other job of the same kind being queued or running.
type Dispatcher struct {
	repo   Repository
	notify func() // optional: wake worker pool
}

func NewDispatcher(repo Repository) *Dispatcher {
	return &Dispatcher{repo: repo}
}

// SetNotify sets a callback invoked after a job is queued.
func (d *Dispatcher) SetNotify(fn func()) { d.notify = fn }

// Submit validates the request, inserts a queued ledger row and returns it.
// The caller gets the job id immediately; execution happens on the worker
// pool. Returns apperror Conflict when a job of the same kind is active.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	j := &Job{
		Kind:        req.Kind,
		Concurrency: req.ClampedConcurrency(),
		IncludeLogs: req.IncludeLogs,
		Status:      StatusQueued,
	}
	if req.StartDate != "" {
		start, _ := time.Parse(dateFormat, req.StartDate)
		j.RequestedStartDate = &start
	}

	if err := d.repo.CreateExclusive(ctx, j); err != nil {
		return nil, err
	}

	slog.Info("job queued", "job", j.ID, "kind", j.Kind, "concurrency", j.Concurrency)

	if d.notify != nil {
		d.notify()
	}
	return j, nil
}
