// Package ops serves the health check and the Prometheus metrics.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nuclight.org/referral-tg-bot/pkg/logger"
)

const pingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps an http.Server with the ops routes.
type Server struct {
	log        logger.Logger
	httpServer *http.Server
}

func NewServer(addr string, log logger.Logger, db Pinger) *Server {
	s := &Server{log: log.With("component", "ops")}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           Router(s.log, db),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Router builds the ops routes: GET /healthz and GET /metrics.
func Router(log logger.Logger, db Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			log.Warn("health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("ops server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down ops server")
	return s.httpServer.Shutdown(ctx)
}
