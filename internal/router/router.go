package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"vpngrid/internal/handler/api"
	"vpngrid/internal/middleware"
	"vpngrid/internal/provision"
	"vpngrid/internal/registry"
	"vpngrid/internal/repository"
	"vpngrid/internal/selector"
	"vpngrid/internal/subscription"
)

// Deps carries the services the HTTP layer fronts.
type Deps struct {
	Registry     *registry.Registry
	Loads        *selector.LoadTracker
	Tariffs      *repository.TariffRepository
	Engine       *subscription.Engine
	Orchestrator *provision.Orchestrator
	EventDeduper middleware.EventDeduper
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps *Deps, apiKey string, logger *zap.Logger) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	// Handlers
	clusterHandler := api.NewClusterHandler(deps.Registry, deps.Loads, logger)
	serverHandler := api.NewServerHandler(deps.Registry, deps.Loads, logger)
	tariffHandler := api.NewTariffHandler(deps.Tariffs, logger)
	subHandler := api.NewSubscriptionHandler(deps.Engine, deps.Orchestrator, logger)
	eventHandler := api.NewEventHandler(deps.Orchestrator, logger)

	// Admin API group behind token auth
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(apiKey))

	apiGroup.GET("/clusters", clusterHandler.List)
	apiGroup.POST("/clusters", clusterHandler.Create)
	apiGroup.GET("/clusters/:id", clusterHandler.Get)
	apiGroup.PUT("/clusters/:id", clusterHandler.Update)
	apiGroup.DELETE("/clusters/:id", clusterHandler.Delete)

	apiGroup.GET("/servers", serverHandler.List)
	apiGroup.POST("/servers", serverHandler.Create)
	apiGroup.GET("/servers/:id", serverHandler.Get)
	apiGroup.PUT("/servers/:id", serverHandler.Update)
	apiGroup.DELETE("/servers/:id", serverHandler.Delete)

	apiGroup.GET("/tariffs", tariffHandler.List)
	apiGroup.POST("/tariffs", tariffHandler.Create)
	apiGroup.GET("/tariffs/:id", tariffHandler.Get)
	apiGroup.DELETE("/tariffs/:id", tariffHandler.Deactivate)

	apiGroup.GET("/users/:user_id/subscriptions", subHandler.ListByUser)
	apiGroup.POST("/users/:user_id/trial", subHandler.Trial)
	apiGroup.GET("/subscriptions/:id", subHandler.Get)
	apiGroup.POST("/subscriptions/:id/renew", subHandler.Renew)
	apiGroup.POST("/subscriptions/:id/traffic", subHandler.AddTraffic)
	apiGroup.DELETE("/subscriptions/:id", subHandler.Cancel)
	apiGroup.GET("/subscriptions/:id/connection", subHandler.Connection)

	// Payment events: authenticated, retried deliveries absorbed by the
	// dedup middleware.
	eventGroup := e.Group("/api/events")
	eventGroup.Use(middleware.APIAuth(apiKey))
	eventGroup.Use(middleware.PaymentEventDedup(deps.EventDeduper))
	eventGroup.POST("/payment", eventHandler.PaymentEvent)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}
