package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/hsichihchen-design/cpdoldsim/pkg/middleware"
)

func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/health", middleware.HealthCheck(s.cfg.ServiceName))
	router.GET("/ready", s.readiness())
	if s.mon != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(s.mon))
	}

	api := router.Group("/api/v1")
	{
		simulations := api.Group("/simulations")
		{
			simulations.POST("", s.createSimulation())
			simulations.GET("", s.listSimulations())
			simulations.GET("/:id", s.getSimulation())
			simulations.GET("/:id/results", s.getResults())
			simulations.POST("/:id/run", s.startSimulation())
			simulations.POST("/:id/cancel", s.cancelSimulation())
		}

		scenarios := api.Group("/scenarios")
		{
			scenarios.GET("/templates", s.listScenarioTemplates())
			scenarios.POST("/run", s.runScenario())
		}
	}
}
