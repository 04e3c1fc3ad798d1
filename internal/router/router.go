package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-variant-engine/internal/config"
	"github.com/noah-isme/gema-variant-engine/internal/handler"
	"github.com/noah-isme/gema-variant-engine/internal/observability"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	VariantHandler    *handler.VariantHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	Registry          *questions.Registry
	HealthPing        handler.Pinger
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", handler.HealthCheck(cfg, deps.Registry, deps.HealthPing))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	variants := v2.Group("/variants")
	if deps.VariantHandler != nil {
		deps.VariantHandler.Register(variants)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(variants)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(v2)
	}
}
