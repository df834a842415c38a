package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grader-go-api/internal/dto"
	"github.com/noah-isme/grader-go-api/internal/grading"
	"github.com/noah-isme/grader-go-api/internal/service"
	"github.com/noah-isme/grader-go-api/internal/utils"
)

// SubmissionHandler exposes the submission evaluation endpoints.
type SubmissionHandler struct {
	service   service.SubmissionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.submit)
	router.Get("/:id/result", h.result)
	router.Get("/:id/grade", h.grade)
	router.Get("/:id/grade/history", h.gradeHistory)
	router.Get("/:id/similarity", h.similarity)
	router.Put("/:id/grade", h.overrideGrade)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	authorID := userIDFromContext(c)
	if authorID == 0 {
		return utils.SendError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	response, err := h.service.Submit(c.UserContext(), authorID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission queued", response)
}

func (h *SubmissionHandler) result(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.GetResult(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "execution result retrieved", response)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.GetGrade(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade retrieved", response)
}

func (h *SubmissionHandler) gradeHistory(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.GetGradeHistory(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade history retrieved", response)
}

func (h *SubmissionHandler) similarity(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.GetSimilarity(c.UserContext(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "similarity report retrieved", response)
}

func (h *SubmissionHandler) overrideGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.OverrideGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	actor := actorFromContext(c)
	if actor.ID == 0 || actor.Role == "" {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	response, err := h.service.OverrideGrade(c.UserContext(), id, payload, actor)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "grade overridden", response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrSubmissionNotFound), errors.Is(err, service.ErrExerciseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	case errors.Is(err, grading.ErrRejectedLocked):
		return utils.SendError(c, fiber.StatusConflict, "submission rejected, admin override required")
	case errors.Is(err, grading.ErrGradeOutOfRange):
		return utils.SendError(c, fiber.StatusBadRequest, "grade out of range")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		h.logger.Error().Err(err).Msg("submission operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
