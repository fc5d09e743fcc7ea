package etl

import (
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
)

const dateFormat = "2006-01-02"

const (
	MinConcurrency = 1
	MaxConcurrency = 10
)

type SubmitRequest struct {
	Kind        Kind
	StartDate   string // required for backfill, YYYY-MM-DD
	Concurrency int    // clamped to [MinConcurrency, MaxConcurrency]
	IncludeLogs bool   // clean only: also clear the ledger
}

func (r SubmitRequest) Validate() *apperror.AppError {
	if !ValidKind(r.Kind) {
		return apperror.New(apperror.BadRequest, "kind must be full_run, backfill or clean")
	}
	switch r.Kind {
	case KindBackfill:
		if r.StartDate == "" {
			return apperror.New(apperror.BadRequest, "start_date is required for backfill")
		}
		if _, err := time.Parse(dateFormat, r.StartDate); err != nil {
			return apperror.New(apperror.BadRequest, "invalid start_date, expected YYYY-MM-DD")
		}
	default:
		if r.StartDate != "" {
			return apperror.New(apperror.BadRequest, "start_date is only valid for backfill")
		}
	}
	return nil
}

// ClampedConcurrency returns the effective concurrency: out-of-range values
// are clamped, never rejected, with 0 treated as "not set".
func (r SubmitRequest) ClampedConcurrency() int {
	c := r.Concurrency
	if c < MinConcurrency {
		c = MinConcurrency
	}
	if c > MaxConcurrency {
		c = MaxConcurrency
	}
	return c
}

type GetJobRequest struct {
	ID int64
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Limit  int
	Offset int
	Status Status
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	if r.Limit < 0 || r.Limit > 500 {
		return apperror.New(apperror.BadRequest, "limit must be between 0 and 500")
	}
	if r.Offset < 0 {
		return apperror.New(apperror.BadRequest, "offset must not be negative")
	}
	if r.Status != "" && !ValidStatus(r.Status) {
		return apperror.New(apperror.BadRequest, "status must be queued, running, finished or failed")
	}
	return nil
}
