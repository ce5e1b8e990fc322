// Package server exposes the coaching engine over HTTP: a JSON API for
// recommendations, matching, statistics, and session control, a WebSocket
// live feed of session events, and the standard health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dialcoach/dialcoach/internal/health"
	"github.com/dialcoach/dialcoach/internal/observe"
	"github.com/dialcoach/dialcoach/internal/session"
	"github.com/dialcoach/dialcoach/internal/stats"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownGrace     = 10 * time.Second
)

// Config holds the dependencies for a [Server].
type Config struct {
	// ListenAddr is the TCP address to listen on (e.g. ":8080").
	ListenAddr string

	// Manager drives session lifecycle and owns the matcher and engine.
	Manager *session.Manager

	// Store is read directly for the statistics and recommendation endpoints.
	Store stats.Store

	// Metrics instruments the API handlers. Nil uses the package default.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. Nil installs a handler with no
	// readiness checks.
	Health *health.Handler
}

// Server is the dialcoach HTTP server.
type Server struct {
	manager *session.Manager
	store   stats.Store
	metrics *observe.Metrics

	httpSrv *http.Server
}

// New assembles the route table and wraps it in the observability middleware.
func New(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}

	s := &Server{
		manager: cfg.Manager,
		store:   cfg.Store,
		metrics: cfg.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/recommendation", s.handleRecommendation)
	mux.HandleFunc("GET /api/openers", s.handleOpeners)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/match", s.handleMatch)
	mux.HandleFunc("POST /api/sessions", s.handleSessionStart)
	mux.HandleFunc("GET /api/sessions/current", s.handleSessionCurrent)
	mux.HandleFunc("POST /api/sessions/current/opener", s.handleSessionSelectOpener)
	mux.HandleFunc("POST /api/sessions/current/end", s.handleSessionEnd)
	mux.HandleFunc("GET /ws/feed", s.handleFeed)
	mux.Handle("GET /metrics", promhttp.Handler())
	cfg.Health.Register(mux)

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(cfg.Metrics)(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the fully wired handler, used by tests with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// within a grace period. Returns nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.httpSrv.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
