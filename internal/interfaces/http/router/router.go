// Package router assembles the gin engine and route table.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sellerpulse/backend/internal/interfaces/http/handler"
	"github.com/sellerpulse/backend/internal/interfaces/http/middleware"
)

// Config controls router assembly
type Config struct {
	ServiceName    string
	TracingEnabled bool
	Debug          bool
}

// Handlers bundles the handlers the router wires up
type Handlers struct {
	Ingestion *handler.IngestionHandler
	Health    *handler.HealthHandler
}

// New builds the gin engine with the full middleware chain and routes
func New(cfg Config, handlers Handlers, logger *zap.Logger) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.RequestLogger(logger),
	)

	engine.GET("/healthz", handlers.Health.Live)
	engine.GET("/readyz", handlers.Health.Ready)

	api := engine.Group("/api/v1")
	runs := api.Group("/ingestion/runs")
	{
		runs.POST("", handlers.Ingestion.Trigger)
		runs.GET("/:id", handlers.Ingestion.Get)
		runs.GET("/:id/audit", handlers.Ingestion.Audit)
		runs.POST("/:id/cancel", handlers.Ingestion.Cancel)
	}

	return engine
}
