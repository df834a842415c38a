package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/grader-go-api/internal/config"
	"github.com/noah-isme/grader-go-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	StatisticsHandler *handler.StatisticsHandler
	Queue             handler.QueueDepther
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Queue))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.StatisticsHandler != nil {
		statistics := api.Group("/statistics", jwtMiddleware)
		deps.StatisticsHandler.Register(statistics)
	}
}
