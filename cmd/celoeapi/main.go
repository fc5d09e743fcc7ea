package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/config"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/pipeline"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/platform/sqlite"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/repository/activity"
	jobrepo "github.com/gagassurya19/backend-celoeapi-sub001/internal/repository/job"
	watermarkrepo "github.com/gagassurya19/backend-celoeapi-sub001/internal/repository/watermark"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/scheduler"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/server"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/watermark"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight ETL workers
	// stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	jobRepo := jobrepo.NewRepository(db.DB)
	wmRepo := watermarkrepo.NewRepository(db.DB)
	extractor := activity.NewLogExtractor(db.DB)

	// Pipelines: one generic flow instantiated per data domain.
	registry := pipeline.NewRegistry()
	registry.Register(&pipeline.Pipeline{
		Name:      "course_activity",
		Key:       func(r pipeline.Row) int64 { return r.CourseID },
		Distinct:  func(r pipeline.Row) int64 { return r.UserID },
		Extractor: extractor,
		Loader:    activity.NewCourseSummaryLoader(db.DB),
	})
	registry.Register(&pipeline.Pipeline{
		Name:      "student_activity",
		Key:       func(r pipeline.Row) int64 { return r.UserID },
		Distinct:  func(r pipeline.Row) int64 { return r.CourseID },
		Extractor: extractor,
		Loader:    activity.NewStudentSummaryLoader(db.DB),
	})

	// Services
	jobSvc := etl.NewService(jobRepo)
	tracker := watermark.NewTracker(wmRepo)
	pipelineSvc := pipeline.NewService(registry, jobSvc, jobRepo, tracker,
		pipeline.WithPageSize(cfg.PageSize),
		pipeline.WithRetries(cfg.PageRetries),
	)
	dispatcher := etl.NewDispatcher(jobRepo)

	// Worker pool: picks up queued jobs in the background.
	pool := etl.NewWorkerPool(jobRepo, pipelineSvc, cfg.Workers)
	dispatcher.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Re-queue jobs interrupted by a previous crash so workers retry them.
	if err := jobSvc.RecoverInterrupted(rootCtx); err != nil {
		slog.Error("failed to recover interrupted jobs", "error", err)
	}
	pool.Notify()

	// Cron: scheduled runs (optional) and the stuck-job reaper.
	sched := scheduler.New(dispatcher, jobSvc)
	if cfg.Schedule != "" {
		if err := sched.AddRunSchedule(cfg.Schedule); err != nil {
			slog.Error("invalid ETL_SCHEDULE", "error", err)
			os.Exit(1)
		}
	}
	if err := sched.AddReaper(cfg.ReapInterval, cfg.StuckTimeout); err != nil {
		slog.Error("invalid reaper interval", "error", err)
		os.Exit(1)
	}
	sched.Start()

	srv := server.New(rootCtx, cfg.Port, dispatcher, jobSvc, server.Options{
		APITokens:    cfg.APITokens,
		StuckTimeout: cfg.StuckTimeout,
	})

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "pipelines", registry.Names())
	<-done

	// Cancel root context first so workers begin winding down, then wait for
	// the pool to drain before closing the HTTP side.
	rootCancel()
	sched.Stop()
	<-poolDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
