package etl

import (
	"context"
	"testing"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
)

func TestSubmit_QueuesJob(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo)
	ctx := context.Background()

	notified := false
	d.SetNotify(func() { notified = true })

	j, err := d.Submit(ctx, SubmitRequest{Kind: KindFullRun})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if j.ID == 0 {
		t.Fatal("expected non-zero job id")
	}
	if j.Status != StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	if !notified {
		t.Error("expected worker pool notification")
	}
}

func TestSubmit_ConcurrencyClamped(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo)
	ctx := context.Background()

	tests := []struct {
		in   int
		want int
	}{
		{0, 1},
		{-3, 1},
		{1, 1},
		{7, 7},
		{10, 10},
		{15, 10},
	}
	for _, tt := range tests {
		j, err := d.Submit(ctx, SubmitRequest{
			Kind:        KindBackfill,
			StartDate:   "2024-01-01",
			Concurrency: tt.in,
		})
		if err != nil {
			t.Fatalf("submit concurrency=%d: %v", tt.in, err)
		}
		if j.Concurrency != tt.want {
			t.Errorf("concurrency=%d: expected clamp to %d, got %d", tt.in, tt.want, j.Concurrency)
		}
		// Finish the job so the next submission is not a conflict.
		if _, err := repo.MarkFinished(ctx, j.ID, nil, nil, 0, "done"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSubmit_InvalidRequests(t *testing.T) {
	d := NewDispatcher(newMockRepo())
	ctx := context.Background()

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"unknown kind", SubmitRequest{Kind: "sideways_load"}},
		{"backfill without start", SubmitRequest{Kind: KindBackfill}},
		{"bad date", SubmitRequest{Kind: KindBackfill, StartDate: "01-01-2024"}},
		{"impossible date", SubmitRequest{Kind: KindBackfill, StartDate: "2024-13-41"}},
		{"start on full_run", SubmitRequest{Kind: KindFullRun, StartDate: "2024-01-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Submit(ctx, tt.req)
			ae, ok := err.(*apperror.AppError)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if ae.Code() != apperror.BadRequest {
				t.Errorf("expected BAD_REQUEST, got %s", ae.Code())
			}
		})
	}
}

func TestSubmit_ConflictingRun(t *testing.T) {
	repo := newMockRepo()
	d := NewDispatcher(repo)
	ctx := context.Background()

	first, err := d.Submit(ctx, SubmitRequest{Kind: KindFullRun})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err = d.Submit(ctx, SubmitRequest{Kind: KindFullRun})
	ae, ok := err.(*apperror.AppError)
	if !ok || ae.Code() != apperror.Conflict {
		t.Fatalf("expected CONFLICT for duplicate submit, got %v", err)
	}

	// The ledger holds exactly one active full_run row.
	jobs, err := repo.List(ctx, 10, 0, StatusQueued)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].ID != first.ID {
		t.Errorf("expected exactly the first job queued, got %+v", jobs)
	}

	// A different kind is not blocked.
	if _, err := d.Submit(ctx, SubmitRequest{Kind: KindClean}); err != nil {
		t.Errorf("clean should not conflict with full_run: %v", err)
	}
}
