package server

import (
	"net/http"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(dispatcher *etl.Dispatcher, jobSvc *etl.Service, opts Options) http.Handler {
	return newMux(dispatcher, jobSvc, opts)
}

func newMux(dispatcher *etl.Dispatcher, jobSvc *etl.Service, opts Options) http.Handler {
	h := &handler{
		dispatcher:   dispatcher,
		jobSvc:       jobSvc,
		stuckTimeout: opts.StuckTimeout,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /api/v1/etl/run", h.run)
	mux.HandleFunc("GET /api/v1/etl/status", h.status)
	mux.HandleFunc("GET /api/v1/etl/logs", h.logs)
	mux.HandleFunc("POST /api/v1/etl/clear", h.clear)
	mux.HandleFunc("POST /api/v1/etl/clear-stuck", h.clearStuck)
	mux.HandleFunc("POST /api/v1/etl/force-clear", h.forceClear)

	// Middleware stack: recovery -> requestID -> logging -> auth (on /api).
	var handler http.Handler = mux
	handler = auth(handler, opts.APITokens)
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
