package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/grader-go-api/internal/config"
	"github.com/noah-isme/grader-go-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	QueueDepth  int       `json:"queue_depth"`
}

// QueueDepther reports the dispatcher backlog for operational monitoring.
type QueueDepther interface {
	Depth() int
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, queue QueueDepther) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
		}
		if queue != nil {
			payload.QueueDepth = queue.Depth()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
