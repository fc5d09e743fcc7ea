package etl

import (
	"context"
	"time"
)

// Repository is the durable job ledger. Every mutation is a single
// conditional statement so concurrent workers and the reaper cannot race:
// the first terminal write wins and later ones affect zero rows.
type Repository interface {
	// CreateExclusive inserts j in queued state unless another job of the
	// same kind is already queued or running, in which case it returns an
	// apperror with code Conflict. The check and insert are one statement.
	CreateExclusive(ctx context.Context, j *Job) error

	Get(ctx context.Context, id int64) (*Job, error)
	Latest(ctx context.Context) (*Job, error)
	List(ctx context.Context, limit, offset int, status Status) ([]Job, error)

	// ClaimQueued atomically moves the oldest queued job to running and sets
	// started_at. Returns nil when nothing is queued.
	ClaimQueued(ctx context.Context) (*Job, error)

	// UpdateProgress records the pagination cursor and adds rowsDelta to the
	// job's row count.
	UpdateProgress(ctx context.Context, id, offset, rowsDelta int64) error

	// MarkFinished and MarkFailed apply only to non-terminal rows and report
	// whether the transition took effect.
	MarkFinished(ctx context.Context, id int64, start, end *time.Time, rowCount int64, message string) (bool, error)
	MarkFailed(ctx context.Context, id int64, message string) (bool, error)

	// Reap fails every running job started before cutoff in one statement
	// and returns the number of rows transitioned.
	Reap(ctx context.Context, cutoff time.Time, message string) (int64, error)

	// FailAllRunning is the operator escape hatch: fail running rows
	// unconditionally.
	FailAllRunning(ctx context.Context, message string) (int64, error)

	// RequeueInterrupted moves running rows back to queued. Called once at
	// startup; any running row then belongs to a dead process.
	RequeueInterrupted(ctx context.Context) (int64, error)

	// Clear deletes all ledger rows except keepID (the clean job itself).
	Clear(ctx context.Context, keepID int64) error
}
