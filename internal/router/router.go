package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teacher-eval-api/internal/config"
	"github.com/noah-isme/teacher-eval-api/internal/handler"
	"github.com/noah-isme/teacher-eval-api/internal/middleware"
	"github.com/noah-isme/teacher-eval-api/internal/models"
	"github.com/noah-isme/teacher-eval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	StatsHandler      *handler.StatsHandler
	FormsHandler      *handler.FormsHandler
	AssignmentHandler *handler.AssignmentHandler
	AdminHandler      *handler.AdminHandler
	HealthChecks      map[string]handler.Pinger
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.FormsHandler != nil {
		deps.FormsHandler.Register(api.Group("/forms", jwtMiddleware))
	}

	if deps.EvaluationHandler != nil {
		evaluations := api.Group("/evaluations", jwtMiddleware)
		deps.EvaluationHandler.Register(evaluations,
			middleware.RateLimit("evaluations", cfg.SubmissionRateLimit, cfg.SubmissionRateWindow))
	}

	if deps.StatsHandler != nil {
		deps.StatsHandler.Register(api.Group("/stats", jwtMiddleware))
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(api.Group("/assignments", jwtMiddleware))
	}

	admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(models.RoleAdmin))
	if deps.AdminHandler != nil {
		deps.AdminHandler.Register(admin)
	}
	if deps.StatsHandler != nil {
		deps.StatsHandler.RegisterAdmin(admin)
	}
}
