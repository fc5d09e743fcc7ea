package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Service exposes ledger reads and the lifecycle transitions shared by the
// worker pool, the reaper and the HTTP layer.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) Latest(ctx context.Context) (*Job, error) {
	return s.repo.Latest(ctx)
}

func (s *Service) List(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = 50
	}
	return s.repo.List(ctx, limit, req.Offset, req.Status)
}

// MarkFinished records a successful completion. A duplicate completion
// signal on an already-terminal job is a logged no-op.
func (s *Service) MarkFinished(ctx context.Context, id int64, start, end *time.Time, rowCount int64, message string) error {
	applied, err := s.repo.MarkFinished(ctx, id, start, end, rowCount, message)
	if err != nil {
		return err
	}
	if !applied {
		slog.Warn("finish on terminal job ignored", "job", id)
	}
	return nil
}

// MarkFailed records a failure; no-op with a warning on terminal jobs.
func (s *Service) MarkFailed(ctx context.Context, id int64, message string) error {
	applied, err := s.repo.MarkFailed(ctx, id, message)
	if err != nil {
		return err
	}
	if !applied {
		slog.Warn("fail on terminal job ignored", "job", id)
	}
	return nil
}

// Reap force-fails every running job older than timeout. A legitimately
// finishing worker cannot race it: both sides write through a conditional
// update and the second one affects zero rows.
func (s *Service) Reap(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-timeout)
	n, err := s.repo.Reap(ctx, cutoff, fmt.Sprintf("timed out after %s", timeout))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("reaped stuck jobs", "count", n, "timeout", timeout.String())
	}
	return n, nil
}

// ForceClear fails all running jobs regardless of age.
func (s *Service) ForceClear(ctx context.Context) (int64, error) {
	n, err := s.repo.FailAllRunning(ctx, "force-cleared by operator")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("force-cleared running jobs", "count", n)
	}
	return n, nil
}

// RecoverInterrupted re-queues jobs left running by a previous process.
// Safe because loads are idempotent; re-running a window overwrites it.
func (s *Service) RecoverInterrupted(ctx context.Context) error {
	n, err := s.repo.RequeueInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("re-queued interrupted jobs", "count", n)
	}
	return nil
}
