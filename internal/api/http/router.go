package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/escalation-engine/internal/api/http/handlers"
	"github.com/spec-kit/escalation-engine/internal/auth"
	"github.com/spec-kit/escalation-engine/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Operators      *handlers.OperatorsHandler
	Escalations    *handlers.EscalationsHandler
	Resolutions    *handlers.ResolutionsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth/operators")
	authGroup.Post("/register", cfg.Operators.Register)
	authGroup.Post("/login", cfg.Operators.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Operators.Me)

	escalations := app.Group("/escalations", cfg.AuthMiddleware.Handle, auth.RequireRole())
	escalations.Post("/admit", cfg.Escalations.Admit)
	escalations.Get("/next", cfg.Escalations.Next)
	escalations.Get("/", cfg.Escalations.List)
	escalations.Get("/:id", cfg.Escalations.Get)
	escalations.Post("/:id/assign", cfg.Escalations.Assign)
	escalations.Post("/:id/release", cfg.Escalations.Release)
	escalations.Post("/:id/priority", cfg.Escalations.EscalatePriority)
	escalations.Get("/:id/handoffs", cfg.Escalations.ListHandoffs)
	escalations.Post("/:id/resolve", cfg.Resolutions.Resolve)

	resolutions := app.Group("/resolutions", cfg.AuthMiddleware.Handle, auth.RequireRole())
	resolutions.Get("/:id", cfg.Resolutions.Get)
	resolutions.Post("/:id/amendments", cfg.Resolutions.Amend)
	resolutions.Post("/:id/feedback", cfg.Resolutions.AddFeedback)
	resolutions.Get("/:id/feedback", cfg.Resolutions.ListFeedback)

	metrics := app.Group("/metrics", cfg.AuthMiddleware.Handle,
		auth.RequireRole(domain.RoleOperator, domain.RoleSupervisor, domain.RoleAdmin))
	metrics.Get("/volume", cfg.Metrics.Volume)
	metrics.Get("/categories", cfg.Metrics.Categories)
	metrics.Get("/sla", cfg.Metrics.SLA)
	metrics.Get("/operators", cfg.Metrics.Operators)
	metrics.Get("/trend", cfg.Metrics.Trend)
}
