package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-orchestrator/internal/api/http/handlers"
	"github.com/spec-kit/ticket-orchestrator/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Gateway        *handlers.GatewayHandler
	Workspaces     *handlers.WorkspaceHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/gateway/events", cfg.Gateway.Receive)

	workspaces := protected.Group("/workspaces/:workspace_id", auth.RequireWorkspace("workspace_id"))
	workspaces.Get("/config", cfg.Workspaces.GetConfig)
	workspaces.Post("/config", cfg.Workspaces.UpsertConfig)
	workspaces.Get("/tickets", cfg.Workspaces.ListOpenTickets)
}
