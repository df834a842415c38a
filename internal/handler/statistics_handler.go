package handler

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grader-go-api/internal/service"
	"github.com/noah-isme/grader-go-api/internal/utils"
)

// StatisticsHandler exposes the aggregated dashboard rollups.
type StatisticsHandler struct {
	service service.StatisticsService
	logger  zerolog.Logger
}

// NewStatisticsHandler constructs the handler.
func NewStatisticsHandler(service service.StatisticsService, logger zerolog.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		service: service,
		logger:  logger.With().Str("component", "statistics_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *StatisticsHandler) Register(router fiber.Router) {
	router.Get("", h.aggregate)
}

func (h *StatisticsHandler) aggregate(c *fiber.Ctx) error {
	scope := service.StatisticsScope{
		Kind: strings.ToLower(strings.TrimSpace(c.Query("scope", service.ScopeGlobal))),
	}

	if raw := strings.TrimSpace(c.Query("scope_id")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid scope_id")
		}
		scope.ID = uint(parsed)
	}

	window := service.StatisticsWindow{}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid from timestamp")
		}
		window.From = from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid to timestamp")
		}
		window.To = to
	}

	snapshot, err := h.service.Aggregate(c.UserContext(), scope, window)
	if err != nil {
		if errors.Is(err, service.ErrUnknownScope) {
			return utils.SendError(c, fiber.StatusBadRequest, "unknown scope")
		}
		h.logger.Error().Err(err).Msg("statistics aggregation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return utils.SendSuccess(c, "statistics retrieved", snapshot)
}
