package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// GradingHandler wires the teacher grading and reassignment endpoints.
type GradingHandler struct {
	grading      service.GradingService
	reassignment service.ReassignmentService
	logger       zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(grading service.GradingService, reassignment service.ReassignmentService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:      grading,
		reassignment: reassignment,
		logger:       logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Get("/:id", h.show)
	router.Patch("/:id/grade", h.grade)
	router.Post("/:id/reassign", h.reassign)
}

func (h *GradingHandler) show(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	view, err := h.grading.Show(requestContext(c), id)
	if err != nil {
		return h.fail(c, err, id, "failed to load grading view")
	}
	return utils.SendSuccess(c, "grading view", view)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.GradeSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	view, err := h.grading.Grade(requestContext(c), id, payload, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, id, "failed to grade session")
	}
	return utils.SendSuccess(c, "session graded", view)
}

func (h *GradingHandler) reassign(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	var payload dto.ReassignSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.reassignment.ReassignByID(requestContext(c), id, payload.Reason, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, id, "failed to reassign session")
	}
	return utils.SendSuccess(c, "session reassigned", dto.NewSessionResponse(session))
}

func (h *GradingHandler) fail(c *fiber.Ctx, err error, sessionID uint, message string) error {
	var denied *service.GradingDeniedError
	var refused *service.ReassignmentNotAllowedError

	switch {
	case errors.As(err, &denied):
		return utils.Fail(c, fiber.StatusConflict, "grading is not available yet", fiber.Map{
			"reason":   denied.Reason,
			"redirect": "assessment_sessions",
		})
	case errors.As(err, &refused):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "session cannot be reassigned", fiber.Map{
			"reason": refused.Reason,
		})
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrAssessmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrScoreExceedsMax), isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("session_id", sessionID).Msg(message)
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
