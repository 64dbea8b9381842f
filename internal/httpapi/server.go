// Package httpapi serves the run-control REST surface: create and start
// simulations, inspect descriptors and results, replay what-if scenarios,
// and expose the health and metrics endpoints.
package httpapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
	"github.com/hsichihchen-design/cpdoldsim/pkg/middleware"
)

// ReadyCheck reports whether the service's dependencies are reachable.
type ReadyCheck func(ctx context.Context) error

// Config holds the serving surface configuration.
type Config struct {
	ServiceName  string
	AllowOrigins []string
}

// Server binds the runner and scenario analysis to the HTTP routes.
type Server struct {
	cfg   Config
	store *masterdata.Store
	runs  *runner.Runner
	mon   *metrics.Metrics
	ready ReadyCheck
	log   *slog.Logger
}

// NewServer builds the serving surface over a loaded master-data store
// and a run registry. Metrics and the readiness check are optional; a nil
// logger falls back to the process default.
func NewServer(cfg Config, store *masterdata.Store, runs *runner.Runner, mon *metrics.Metrics, ready ReadyCheck, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("httpapi: nil master-data store")
	}
	if runs == nil {
		return nil, errors.New("httpapi: nil runner")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "simulation-api"
	}
	return &Server{
		cfg:   cfg,
		store: store,
		runs:  runs,
		mon:   mon,
		ready: ready,
		log:   logger.With("component", "httpapi"),
	}, nil
}

// Router assembles the middleware chain and routes onto a fresh engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	middleware.Setup(router, &middleware.Config{
		Logger:       s.log,
		ServiceName:  s.cfg.ServiceName,
		EnableCORS:   true,
		AllowOrigins: s.cfg.AllowOrigins,
	})
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(s.cfg.ServiceName)))
	if s.mon != nil {
		router.Use(middleware.MetricsMiddleware(s.mon))
	}

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	s.registerRoutes(router)
	return router
}
