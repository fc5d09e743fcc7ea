package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gagassurya19/backend-celoeapi-sub001/internal/etl"
)

type Server struct {
	srv *http.Server
}

// Options carry the handler's tunables from config.
type Options struct {
	APITokens    []string
	StuckTimeout time.Duration
}

// New creates the server. The baseCtx is used as the base context for all
// incoming requests, so cancelling it winds down in-flight handlers during
// graceful shutdown.
func New(baseCtx context.Context, port string, dispatcher *etl.Dispatcher, jobSvc *etl.Service, opts Options) *Server {
	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: newMux(dispatcher, jobSvc, opts),
			BaseContext: func(_ net.Listener) context.Context {
				return baseCtx
			},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	return s.srv.Shutdown(ctx)
}
