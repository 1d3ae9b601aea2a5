package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/case-service/internal/api/http/handlers"
	"github.com/spec-kit/case-service/internal/auth"
	"github.com/spec-kit/case-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Cases          *handlers.CasesHandler
	Ops            *handlers.OpsHandler
	AuthMiddleware *auth.AuthMiddleware
	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	cases := api.Group("/cases")
	cases.Post("/", cfg.Cases.CreateCase)
	cases.Get("/", cfg.Cases.ListCases)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Patch("/:id", cfg.Cases.UpdateCase)
	cases.Get("/:id/activities", cfg.Cases.ListActivities)
	cases.Post("/:id/notes", cfg.Cases.AddNote)

	// a prefix-less group would apply the role check to every /api/v1 route
	operator := auth.RequireRole(domain.RoleAdmin, domain.RoleScheduler)
	api.Post("/sla/sweep", operator, cfg.Ops.Sweep)
	api.Get("/outbox/exhausted", operator, cfg.Ops.ListExhausted)
	api.Post("/outbox/:id/requeue", operator, cfg.Ops.Requeue)
}
