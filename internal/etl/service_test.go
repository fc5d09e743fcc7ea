package etl

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestService_TerminalTransitionsAreIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	j := &Job{Kind: KindFullRun}
	if err := repo.CreateExclusive(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ClaimQueued(ctx); err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkFinished(ctx, j.ID, nil, nil, 42, "done"); err != nil {
		t.Fatalf("mark finished: %v", err)
	}

	// Duplicate completion signals are no-ops, not errors.
	if err := svc.MarkFailed(ctx, j.ID, "late failure"); err != nil {
		t.Fatalf("mark failed on terminal: %v", err)
	}
	if err := svc.MarkFinished(ctx, j.ID, nil, nil, 0, "again"); err != nil {
		t.Fatalf("mark finished on terminal: %v", err)
	}

	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFinished {
		t.Errorf("expected finished, got %s", got.Status)
	}
	if got.RowCount != 42 || got.Message != "done" {
		t.Errorf("terminal row was overwritten: %+v", got)
	}
}

func TestService_ReapUsesTimeoutCutoff(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	svc.now = func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	ctx := context.Background()

	n, err := svc.Reap(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 reaped on empty ledger, got %d", n)
	}

	wantCutoff := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !repo.reapCutoff.Equal(wantCutoff) {
		t.Errorf("expected cutoff %v, got %v", wantCutoff, repo.reapCutoff)
	}
	if !strings.Contains(repo.reapMessage, "timed out after 2h") {
		t.Errorf("unexpected reap message: %q", repo.reapMessage)
	}
}

func TestService_RecoverInterrupted(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	j := &Job{Kind: KindFullRun}
	if err := repo.CreateExclusive(ctx, j); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ClaimQueued(ctx); err != nil {
		t.Fatal(err)
	}

	if err := svc.RecoverInterrupted(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusQueued {
		t.Errorf("expected running job re-queued, got %s", got.Status)
	}
	if got.StartedAt != nil {
		t.Error("expected started_at reset")
	}
}
