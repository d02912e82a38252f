package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

var (
	errInvalidAssessmentID = errors.New("invalid assessment identifier")
	errUnauthenticated     = errors.New("user not authenticated")
)

// SessionHandler serves the student side of an assessment session.
type SessionHandler struct {
	service service.StudentSessionService
	logger  zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service service.StudentSessionService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register binds the session routes under /assessments/:assessmentID/session.
// answerLimiter throttles autosave traffic and may be nil.
func (h *SessionHandler) Register(router fiber.Router, answerLimiter fiber.Handler) {
	router.Get("/", h.show)
	router.Post("/start", h.start)
	if answerLimiter != nil {
		router.Put("/answers/:questionID", answerLimiter, h.saveAnswer)
	} else {
		router.Put("/answers/:questionID", h.saveAnswer)
	}
	router.Post("/submit", h.submit)
	router.Post("/violations", h.reportViolation)
}

func (h *SessionHandler) show(c *fiber.Ctx) error {
	assessmentID, studentID, err := h.identify(c)
	if err != nil {
		return h.fail(c, err, 0, "")
	}

	session, err := h.service.Get(requestContext(c), assessmentID, studentID)
	if err != nil {
		return h.fail(c, err, assessmentID, "failed to load session")
	}
	return utils.SendSuccess(c, "session retrieved", session)
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	assessmentID, studentID, err := h.identify(c)
	if err != nil {
		return h.fail(c, err, 0, "")
	}

	session, err := h.service.Start(requestContext(c), assessmentID, studentID)
	if err != nil {
		return h.fail(c, err, assessmentID, "failed to start session")
	}
	return utils.SendSuccess(c, "session started", session)
}

func (h *SessionHandler) saveAnswer(c *fiber.Ctx) error {
	assessmentID, studentID, err := h.identify(c)
	if err != nil {
		return h.fail(c, err, 0, "")
	}
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question identifier")
	}

	var payload dto.SaveAnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	answer, err := h.service.SaveAnswer(requestContext(c), assessmentID, studentID, questionID, payload)
	if err != nil {
		return h.fail(c, err, assessmentID, "failed to save answer")
	}
	return utils.SendSuccess(c, "answer saved", answer)
}

func (h *SessionHandler) submit(c *fiber.Ctx) error {
	assessmentID, studentID, err := h.identify(c)
	if err != nil {
		return h.fail(c, err, 0, "")
	}

	result, err := h.service.Submit(requestContext(c), assessmentID, studentID)
	if err != nil {
		return h.fail(c, err, assessmentID, "failed to submit session")
	}

	message := "session submitted"
	if !result.Applied {
		message = "session already submitted"
	}
	return utils.SendSuccess(c, message, result)
}

func (h *SessionHandler) reportViolation(c *fiber.Ctx) error {
	assessmentID, studentID, err := h.identify(c)
	if err != nil {
		return h.fail(c, err, 0, "")
	}

	var payload dto.ViolationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.ReportViolation(requestContext(c), assessmentID, studentID, payload)
	if err != nil {
		return h.fail(c, err, assessmentID, "failed to record violation")
	}
	return utils.SendSuccess(c, "violation recorded", result)
}

func (h *SessionHandler) identify(c *fiber.Ctx) (uint, uint, error) {
	assessmentID, err := parseUintParam(c, "assessmentID")
	if err != nil {
		return 0, 0, errInvalidAssessmentID
	}
	studentID := userIDFromContext(c)
	if studentID == 0 {
		return 0, 0, errUnauthenticated
	}
	return assessmentID, studentID, nil
}

func (h *SessionHandler) fail(c *fiber.Ctx, err error, assessmentID uint, message string) error {
	switch {
	case errors.Is(err, errInvalidAssessmentID):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, errUnauthenticated):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrAssessmentNotFound), errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assessment not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, service.ErrSessionClosed):
		return utils.Fail(c, fiber.StatusConflict, err.Error(), fiber.Map{"redirect": "summary"})
	case errors.Is(err, service.ErrAssessmentNotOpen):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidAnswerPayload), isValidationError(err):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("assessment_id", assessmentID).Msg(message)
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
