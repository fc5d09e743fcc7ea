package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/platform/sqlite"
	jobrepo "github.com/gagassurya19/backend-celoeapi-sub001/internal/repository/job"
)

const testToken = "test-token"

// newTestServer builds the handler on an in-memory database with no worker
// pool attached, so submitted jobs stay queued and dispatch behavior can be
// asserted deterministically.
func newTestServer(t *testing.T) (*httptest.Server, *jobrepo.Repository) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := jobrepo.NewRepository(db.DB)
	dispatcher := etl.NewDispatcher(repo)
	jobSvc := etl.NewService(repo)

	h := NewHandler(dispatcher, jobSvc, Options{
		APITokens:    []string{testToken},
		StuckTimeout: 2 * time.Hour,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, repo
}

func request(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope APIResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestHealth_NoAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuth_RejectsMissingAndUnknownTokens(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodGet, "/api/v1/etl/logs", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", resp.StatusCode)
	}

	resp = request(t, srv, http.MethodGet, "/api/v1/etl/logs", "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown token: expected 401, got %d", resp.StatusCode)
	}
}

func TestRun_AcceptedWithJobID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodPost, "/api/v1/etl/run", testToken,
		map[string]any{"kind": "full_run"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	data := decodeData[map[string]int64](t, resp)
	if data["job_id"] == 0 {
		t.Error("expected a job_id in the response")
	}
}

func TestRun_DuplicateConflicts(t *testing.T) {
	srv, _ := newTestServer(t)

	body := map[string]any{"kind": "full_run"}
	resp := request(t, srv, http.MethodPost, "/api/v1/etl/run", testToken, body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("first run: expected 202, got %d", resp.StatusCode)
	}

	resp = request(t, srv, http.MethodPost, "/api/v1/etl/run", testToken, body)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second run: expected 409, got %d", resp.StatusCode)
	}
}

func TestRun_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown kind", map[string]any{"kind": "reverse_run"}},
		{"bad date", map[string]any{"kind": "backfill", "start_date": "not-a-date"}},
		{"backfill without start", map[string]any{"kind": "backfill"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := request(t, srv, http.MethodPost, "/api/v1/etl/run", testToken, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestStatus_SpecificAndLatest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodGet, "/api/v1/etl/status", testToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty ledger: expected 404, got %d", resp.StatusCode)
	}

	resp = request(t, srv, http.MethodPost, "/api/v1/etl/run", testToken,
		map[string]any{"kind": "backfill", "start_date": "2024-01-01", "concurrency": 15})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run: expected 202, got %d", resp.StatusCode)
	}
	id := decodeData[map[string]int64](t, resp)["job_id"]

	resp = request(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/etl/status?job_id=%d", id), testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", resp.StatusCode)
	}
	j := decodeData[etl.Job](t, resp)
	if j.Status != etl.StatusQueued {
		t.Errorf("expected queued, got %s", j.Status)
	}
	// Out-of-range concurrency was clamped, not echoed back.
	if j.Concurrency != etl.MaxConcurrency {
		t.Errorf("expected concurrency clamped to %d, got %d", etl.MaxConcurrency, j.Concurrency)
	}

	resp = request(t, srv, http.MethodGet, "/api/v1/etl/status", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", resp.StatusCode)
	}
	latest := decodeData[etl.Job](t, resp)
	if latest.ID != id {
		t.Errorf("expected latest to be job %d, got %d", id, latest.ID)
	}
}

func TestLogs_FilterValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodGet, "/api/v1/etl/logs?status=dancing", testToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status filter: expected 400, got %d", resp.StatusCode)
	}

	resp = request(t, srv, http.MethodGet, "/api/v1/etl/logs?limit=5", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	jobs := decodeData[[]etl.Job](t, resp)
	if len(jobs) != 0 {
		t.Errorf("expected empty list, got %d", len(jobs))
	}
}

func TestClear_QueuesCleanJob(t *testing.T) {
	srv, repo := newTestServer(t)

	resp := request(t, srv, http.MethodPost, "/api/v1/etl/clear", testToken,
		map[string]any{"include_logs": true})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	id := decodeData[map[string]int64](t, resp)["job_id"]

	j, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if j.Kind != etl.KindClean || !j.IncludeLogs {
		t.Errorf("unexpected clean job: %+v", j)
	}
}

func TestClearStuck_EmptyLedger(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := request(t, srv, http.MethodPost, "/api/v1/etl/clear-stuck", testToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := decodeData[map[string]int64](t, resp)
	if data["reaped"] != 0 {
		t.Errorf("expected 0 reaped, got %d", data["reaped"])
	}
}
