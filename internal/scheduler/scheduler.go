// Package scheduler wires the cron-driven parts of the service: scheduled
// incremental runs and the fixed-interval stuck-job reaper.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
)

type Scheduler struct {
	cron       *cron.Cron
	dispatcher *etl.Dispatcher
	jobSvc     *etl.Service
}

func New(dispatcher *etl.Dispatcher, jobSvc *etl.Service) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		dispatcher: dispatcher,
		jobSvc:     jobSvc,
	}
}

// AddRunSchedule registers an incremental full run on the given cron spec.
// A run overlapping an in-flight job is skipped; the ledger already holds
// the active row, so the conflict is expected and logged at info.
func (s *Scheduler) AddRunSchedule(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		j, err := s.dispatcher.Submit(ctx, etl.SubmitRequest{Kind: etl.KindFullRun})
		if err != nil {
			if ae, ok := err.(*apperror.AppError); ok && ae.Code() == apperror.Conflict {
				slog.Info("scheduled run skipped, previous job still active")
				return
			}
			slog.Error("scheduled run submit", "error", err)
			return
		}
		slog.Info("scheduled run queued", "job", j.ID)
	})
	if err != nil {
		return fmt.Errorf("add run schedule %q: %w", spec, err)
	}
	return nil
}

// AddReaper registers the stuck-job reaper on a fixed interval.
func (s *Scheduler) AddReaper(interval, timeout time.Duration) error {
	spec := fmt.Sprintf("@every %s", interval)
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.jobSvc.Reap(ctx, timeout); err != nil {
			slog.Error("reaper tick", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add reaper interval %s: %w", interval, err)
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new ticks and waits for running ones.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
