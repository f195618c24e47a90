// Package core provides the HTTP chassis for the fetch gateway. It creates a
// chi router usable both by a standard net/http server (local and container
// deployments) and by the API Gateway adapter in Lambda mode, and it enforces
// the cross-cutting concerns (recovery, request IDs, logging, CORS, metrics,
// compression) before requests reach the fetch handler.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fetchgate/internal/config"
)

// MetricsCollector records API telemetry.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of routes on the root router. Handler
// packages expose one so that core never imports them.
type RouteRegistrar func(r chi.Router)

// ShutdownHook releases a resource when the server stops.
type ShutdownHook func(ctx context.Context) error

// Server encapsulates all dependencies of the gateway API.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	HealthProbes    []HealthProbe
	RouteRegistrars []RouteRegistrar
	ShutdownHooks   []ShutdownHook

	router *chi.Mux
}

// NewServer validates its dependencies and prepares an empty router. The
// caller mounts routes with MountRoutes after adding registrars.
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

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs every registered hook, in registration order, and joins
// their errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.ShutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
