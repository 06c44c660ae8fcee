package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/judging-integrity-api/internal/config"
	"github.com/noah-isme/judging-integrity-api/internal/handler"
	"github.com/noah-isme/judging-integrity-api/internal/middleware"
	"github.com/noah-isme/judging-integrity-api/internal/models"
	"github.com/noah-isme/judging-integrity-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	LockHandler         *handler.LockHandler
	VerificationHandler *handler.VerificationHandler
	ScoreHandler        *handler.ScoreHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.ActivityHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	writeLimit := middleware.RateLimit("judging-writes", cfg.WriteRateLimit, cfg.WriteRateWindow)

	if deps.LockHandler != nil {
		deps.LockHandler.Register(api.Group("/hackathons", jwtMiddleware, writeLimit))
	}

	if deps.VerificationHandler != nil {
		deps.VerificationHandler.Register(api.Group("/projects", jwtMiddleware))
	}

	if deps.ScoreHandler != nil {
		deps.ScoreHandler.Register(api.Group("/scores", jwtMiddleware, writeLimit, middleware.RequireRole(models.RoleJudge)))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/admin/activities", jwtMiddleware, middleware.RequireRole(models.RoleAdmin)))
	}
}
