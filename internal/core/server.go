// Package core provides the HTTP chassis for the docgate gateway. It builds a
// chi router that serves both a local HTTP listener and AWS Lambda (through
// the API Gateway v2 adapter) and applies the cross-cutting concerns of
// principal resolution, logging, metrics, CSRF and rate limiting before
// requests reach handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docgate/internal/config"
	"docgate/internal/types"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the dependencies shared by the middleware chain. Handlers are
// attached through V1RouteRegistrars so this package does not import them.
type Server struct {
	Config          *config.Config
	Logger          *slog.Logger
	Validator       *Validator
	Metrics         MetricsCollector
	SecurityService types.SecurityService
	Sessions        SessionResolver
	RateLimitStore  RateLimitStore
	HealthChecks    []HealthCheck

	V1RouteRegistrars []func(chi.Router)

	closers []func() error
	router  *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// Call MountRoutes once the optional collaborators are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a resource to release in Shutdown, in reverse order.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown releases registered resources. Every closer runs even if an
// earlier one fails; the first error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.ErrorContext(ctx, "error releasing resource", "error", err)
			if first == nil {
				first = err
			}
		}
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return first
}
