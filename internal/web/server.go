// Package web provides the JSON status API served in serve mode.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"weather-etl/internal/config"
	"weather-etl/internal/etl"
	"weather-etl/internal/web/middleware"
)

// LastRunner reports the most recent scheduled pipeline run. Implemented by
// scheduler.Scheduler; nil when scheduling is disabled.
type LastRunner interface {
	LastRun() (*etl.RunSummary, error)
}

// Server is the HTTP server exposing store status.
type Server struct {
	loader  etl.RecordLoader
	lastRun LastRunner
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. lastRun may be nil when no scheduler runs.
func NewServer(loader etl.RecordLoader, lastRun LastRunner, cfg *config.Config) *Server {
	s := &Server{
		loader:  loader,
		lastRun: lastRun,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(30 * time.Second))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
