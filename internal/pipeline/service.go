package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/watermark"
)

// Service executes claimed jobs: it resolves each pipeline's window from the
// watermark, pages through the source log, aggregates and upserts, and drives
// the ledger row to a terminal state. It implements etl.Processor.
type Service struct {
	registry *Registry
	jobs     *etl.Service
	ledger   etl.Repository
	tracker  *watermark.Tracker

	pageSize int64
	retries  int
	backoff  time.Duration
}

func NewService(registry *Registry, jobs *etl.Service, ledger etl.Repository, tracker *watermark.Tracker, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		jobs:     jobs,
		ledger:   ledger,
		tracker:  tracker,
		pageSize: 1000,
		retries:  3,
		backoff:  500 * time.Millisecond,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets how many source rows are fetched per page.
func WithPageSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithRetries sets how many times a failed page fetch is retried.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithBackoff sets the base delay between page fetch retries.
func WithBackoff(d time.Duration) Option {
	return func(s *Service) { s.backoff = d }
}

// Names lists the registered pipeline names.
func (s *Service) Names() []string { return s.registry.Names() }

// Process implements etl.Processor for a claimed (running) job.
func (s *Service) Process(ctx context.Context, j *etl.Job) error {
	if j.Kind == etl.KindClean {
		return s.clean(ctx, j)
	}
	return s.run(ctx, j)
}

func (s *Service) run(ctx context.Context, j *etl.Job) error {
	var (
		total      int64
		first, last *time.Time
	)

	for _, p := range s.registry.All() {
		win, ok, err := s.tracker.NextWindow(ctx, p.Name, j.RequestedStartDate)
		if err != nil {
			return s.fail(ctx, j, err)
		}
		if !ok {
			slog.Info("pipeline up to date", "job", j.ID, "pipeline", p.Name)
			continue
		}

		rows, err := s.runWindow(ctx, j, p, win)
		if err != nil {
			return s.fail(ctx, j, fmt.Errorf("pipeline %s: %w", p.Name, err))
		}
		total += rows

		if first == nil || win.Start.Before(*first) {
			start := win.Start
			first = &start
		}
		if last == nil || win.End.After(*last) {
			end := win.End
			last = &end
		}
	}

	if first == nil {
		return s.jobs.MarkFinished(noCancel(ctx), j.ID, nil, nil, 0, "nothing to do")
	}
	return s.jobs.MarkFinished(noCancel(ctx), j.ID, first, last, total,
		fmt.Sprintf("processed %s through %s", first.Format(time.DateOnly), last.Format(time.DateOnly)))
}

// runWindow processes every day in the window. Extraction and load of day
// chunks may run in parallel up to the job's concurrency, but watermark
// commits stay serialized in date order: day i commits only after day i-1
// has committed, which keeps the watermark monotone even when a later day
// finishes first.
func (s *Service) runWindow(ctx context.Context, j *etl.Job, p *Pipeline, win watermark.Window) (int64, error) {
	days := win.Days()

	if j.Concurrency <= 1 || len(days) == 1 {
		var total int64
		for _, day := range days {
			rows, cursor, err := s.runDay(ctx, j, p, day)
			if err != nil {
				return total, err
			}
			if err := s.tracker.Commit(ctx, p.Name, day, cursor); err != nil {
				return total, err
			}
			total += rows
		}
		return total, nil
	}

	// committed[i] closes once day i-1 has committed its watermark.
	committed := make([]chan struct{}, len(days)+1)
	for i := range committed {
		committed[i] = make(chan struct{})
	}
	close(committed[0])

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.Concurrency)

	for i, day := range days {
		g.Go(func() error {
			rows, cursor, err := s.runDay(gctx, j, p, day)
			if err != nil {
				return err
			}
			select {
			case <-committed[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err := s.tracker.Commit(gctx, p.Name, day, cursor); err != nil {
				return err
			}
			close(committed[i+1])
			total.Add(rows)
			return nil
		})
	}

	err := g.Wait()
	return total.Load(), err
}

// runDay extracts one day in pages, aggregates in memory and upserts the
// totals. Returns the number of source rows seen and the cursor (last source
// row id) for the watermark.
func (s *Service) runDay(ctx context.Context, j *etl.Job, p *Pipeline, day time.Time) (int64, string, error) {
	date := day.Format(time.DateOnly)

	expected, err := p.Extractor.CountRows(ctx, day)
	if err != nil {
		return 0, "", fmt.Errorf("count rows for %s: %w", date, err)
	}
	if expected == 0 {
		return 0, "", nil
	}

	pages := (expected + s.pageSize - 1) / s.pageSize
	slog.Info("extracting day", "job", j.ID, "pipeline", p.Name, "date", date,
		"rows", expected, "pages", pages)

	totals := make(map[int64]*Totals)
	var seen, maxID int64

	for offset := int64(0); offset < expected; offset += s.pageSize {
		rows, err := s.fetchPage(ctx, p, day, offset)
		if err != nil {
			return seen, "", fmt.Errorf("page at offset %d: %w", offset, err)
		}
		if len(rows) == 0 {
			break // source shrank since the count; nothing left for this day
		}

		p.Aggregate(rows, totals)
		seen += int64(len(rows))
		if id := rows[len(rows)-1].ID; id > maxID {
			maxID = id
		}

		if err := s.ledger.UpdateProgress(ctx, j.ID, offset+int64(len(rows)), int64(len(rows))); err != nil {
			slog.Warn("update job progress", "job", j.ID, "error", err)
		}
	}

	res, err := p.Loader.Load(ctx, day, totals)
	if err != nil {
		return seen, "", fmt.Errorf("load %s: %w", date, err)
	}

	slog.Info("day loaded", "job", j.ID, "pipeline", p.Name, "date", date,
		"entities", len(totals), "inserted", res.Inserted, "updated", res.Updated)
	return seen, strconv.FormatInt(maxID, 10), nil
}

// fetchPage retries transient source failures a bounded number of times with
// linear backoff before giving up; the failing offset ends up in the job
// message for manual resumption.
func (s *Service) fetchPage(ctx context.Context, p *Pipeline, day time.Time, offset int64) ([]Row, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}

		rows, err := p.Extractor.FetchPage(ctx, day, offset, s.pageSize)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		slog.Warn("page fetch failed", "pipeline", p.Name, "offset", offset,
			"attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (s *Service) clean(ctx context.Context, j *etl.Job) error {
	for _, p := range s.registry.All() {
		if err := p.Loader.Truncate(ctx); err != nil {
			return s.fail(ctx, j, fmt.Errorf("truncate %s: %w", p.Name, err))
		}
		if err := s.tracker.Reset(ctx, p.Name); err != nil {
			return s.fail(ctx, j, err)
		}
	}

	msg := "summary tables cleared"
	if j.IncludeLogs {
		if err := s.ledger.Clear(noCancel(ctx), j.ID); err != nil {
			return s.fail(ctx, j, fmt.Errorf("clear job logs: %w", err))
		}
		msg = "summary tables and job logs cleared"
	}
	return s.jobs.MarkFinished(noCancel(ctx), j.ID, nil, nil, 0, msg)
}

// fail records the terminal state and passes the original error through.
// The terminal write uses a detached context so a cancelled job still ends
// up failed in the ledger rather than stuck in running.
func (s *Service) fail(ctx context.Context, j *etl.Job, err error) error {
	if mErr := s.jobs.MarkFailed(noCancel(ctx), j.ID, err.Error()); mErr != nil {
		slog.Error("mark job failed", "job", j.ID, "error", mErr)
	}
	return err
}

func noCancel(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
