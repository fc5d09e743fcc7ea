package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/apperror"
	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
)

type handler struct {
	dispatcher   *etl.Dispatcher
	jobSvc       *etl.Service
	stuckTimeout time.Duration
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	Kind        string `json:"kind"`
	StartDate   string `json:"start_date,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
}

type runResponse struct {
	JobID int64 `json:"job_id"`
}

// run accepts the job and returns 202 immediately; the worker pool picks the
// queued row up asynchronously and status is polled via the job id.
func (h *handler) run(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	j, err := h.dispatcher.Submit(r.Context(), etl.SubmitRequest{
		Kind:        etl.Kind(body.Kind),
		StartDate:   body.StartDate,
		Concurrency: body.Concurrency,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, runResponse{JobID: j.ID})
}

// status returns the job identified by ?job_id=, or the latest job when
// omitted.
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("job_id")
	if idStr == "" {
		j, err := h.jobSvc.Latest(r.Context())
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, j)
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job_id")
		return
	}

	j, err := h.jobSvc.Get(r.Context(), etl.GetJobRequest{ID: id})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	req := etl.ListJobsRequest{
		Status: etl.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		req.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		req.Offset = n
	}

	jobs, err := h.jobSvc.List(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if jobs == nil {
		jobs = []etl.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

type clearRequest struct {
	IncludeLogs bool `json:"include_logs,omitempty"`
}

// clear queues a clean job that truncates the summary tables (and optionally
// the ledger itself).
func (h *handler) clear(w http.ResponseWriter, r *http.Request) {
	var body clearRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	j, err := h.dispatcher.Submit(r.Context(), etl.SubmitRequest{
		Kind:        etl.KindClean,
		IncludeLogs: body.IncludeLogs,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{JobID: j.ID})
}

type reapResponse struct {
	Reaped int64 `json:"reaped"`
}

func (h *handler) clearStuck(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobSvc.Reap(r.Context(), h.stuckTimeout)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reapResponse{Reaped: n})
}

func (h *handler) forceClear(w http.ResponseWriter, r *http.Request) {
	n, err := h.jobSvc.ForceClear(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reapResponse{Reaped: n})
}

func writeAppError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperror.AppError); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
