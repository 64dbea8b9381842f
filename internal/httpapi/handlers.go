package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/runner"
	"github.com/hsichihchen-design/cpdoldsim/internal/scenario"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
	apperrors "github.com/hsichihchen-design/cpdoldsim/pkg/errors"
	"github.com/hsichihchen-design/cpdoldsim/pkg/middleware"
)

// createSimulation handles POST /api/v1/simulations.
func (s *Server) createSimulation() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)

		var req CreateSimulationRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		store, err := s.storeFor(req.ParameterOverrides)
		if err != nil {
			responder.RespondBadRequest(err.Error())
			return
		}

		descriptor, err := s.runs.CreateWith(store, req.toConfig())
		if err != nil {
			s.respondRunError(responder, "", err)
			return
		}

		middleware.AddSpanAttributes(c, map[string]any{"run.id": descriptor.RunID})
		c.JSON(http.StatusCreated, descriptor)
	}
}

// storeFor resolves the master-data store for one run: the shared store,
// or a fresh one built from an overridden parameter table.
func (s *Server) storeFor(overrides map[string]string) (*masterdata.Store, error) {
	if len(overrides) == 0 {
		return s.store, nil
	}

	sc := scenario.Scenario{Name: "request-overrides", Overrides: overrides}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	store, err := masterdata.NewStore(sc.Apply(s.store.Bundle()), s.log)
	if err != nil {
		return nil, fmt.Errorf("parameter overrides rejected: %w", err)
	}
	return store, nil
}

// startSimulation handles POST /api/v1/simulations/:id/run.
func (s *Server) startSimulation() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)
		runID := c.Param("id")

		middleware.AddSpanAttributes(c, map[string]any{"run.id": runID})

		if err := s.runs.Start(runID); err != nil {
			s.respondRunError(responder, runID, err)
			return
		}

		descriptor, err := s.runs.Get(c.Request.Context(), runID)
		if err != nil {
			s.respondRunError(responder, runID, err)
			return
		}
		c.JSON(http.StatusAccepted, descriptor)
	}
}

// cancelSimulation handles POST /api/v1/simulations/:id/cancel. The run
// settles asynchronously; the returned descriptor may still read RUNNING.
func (s *Server) cancelSimulation() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)
		runID := c.Param("id")

		middleware.AddSpanAttributes(c, map[string]any{"run.id": runID})

		if err := s.runs.Cancel(runID); err != nil {
			s.respondRunError(responder, runID, err)
			return
		}

		descriptor, err := s.runs.Get(c.Request.Context(), runID)
		if err != nil {
			s.respondRunError(responder, runID, err)
			return
		}
		c.JSON(http.StatusAccepted, descriptor)
	}
}

// getSimulation handles GET /api/v1/simulations/:id.
func (s *Server) getSimulation() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)
		runID := c.Param("id")

		middleware.AddSpanAttributes(c, map[string]any{"run.id": runID})

		descriptor, err := s.runs.Get(c.Request.Context(), runID)
		if err != nil {
			s.respondRunError(responder, runID, err)
			return
		}
		c.JSON(http.StatusOK, descriptor)
	}
}

// getResults handles GET /api/v1/simulations/:id/results.
func (s *Server) getResults() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)
		runID := c.Param("id")

		middleware.AddSpanAttributes(c, map[string]any{"run.id": runID})

		results, err := s.runs.Results(c.Request.Context(), runID)
		if err != nil {
			s.respondRunError(responder, runID, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

// listSimulations handles GET /api/v1/simulations.
func (s *Server) listSimulations() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				responder.RespondValidationError("validation failed",
					map[string]string{"limit": "must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		runs, err := s.runs.List(c.Request.Context(), limit)
		if err != nil {
			responder.RespondInternalError(err)
			return
		}
		c.JSON(http.StatusOK, ListSimulationsResponse{Runs: runs, Count: len(runs)})
	}
}

// runScenario handles POST /api/v1/scenarios/run. Baseline and scenario
// execute synchronously inside the request; at demo scale a two-day
// window replays in well under a second.
func (s *Server) runScenario() gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, s.log)

		var req ScenarioRunRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		if err := req.Scenario.Validate(); err != nil {
			responder.RespondBadRequest(err.Error())
			return
		}

		middleware.AddSpanAttributes(c, map[string]any{"scenario.name": req.Scenario.Name})

		analyzer, err := scenario.NewAnalyzer(s.store.Bundle(), req.toConfig(), s.log)
		if err != nil {
			responder.RespondInternalError(err)
			return
		}
		report, err := analyzer.Run(c.Request.Context(), req.Scenario)
		if err != nil {
			s.respondRunError(responder, "", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// listScenarioTemplates handles GET /api/v1/scenarios/templates.
func (s *Server) listScenarioTemplates() gin.HandlerFunc {
	return func(c *gin.Context) {
		templates := scenario.Templates()
		c.JSON(http.StatusOK, ScenarioTemplatesResponse{Templates: templates, Count: len(templates)})
	}
}

// readiness reports dependency health plus the current run load.
func (s *Server) readiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.ready != nil {
			if err := s.ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "not ready",
					"service": s.cfg.ServiceName,
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"service":     s.cfg.ServiceName,
			"active_runs": s.runs.Active(),
		})
	}
}

// respondRunError translates registry and engine sentinels into the
// standard error responses.
func (s *Server) respondRunError(responder *middleware.ErrorResponder, runID string, err error) {
	switch {
	case errors.Is(err, runner.ErrRunNotFound):
		responder.RespondWithAppError(apperrors.ErrNotFoundWithID("run", runID))
	case errors.Is(err, runner.ErrAlreadyStarted),
		errors.Is(err, runner.ErrNotStarted),
		errors.Is(err, runner.ErrNotFinished):
		responder.RespondConflict(err.Error())
	case errors.Is(err, scheduler.ErrInvalidWindow),
		errors.Is(err, scenario.ErrInvalidScenario):
		responder.RespondBadRequest(err.Error())
	default:
		responder.RespondInternalError(err)
	}
}
