package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/database"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

const (
	headerTestUser = "X-Test-User"
	headerTestRole = "X-Test-Role"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	assessmentRepo := repository.NewAssessmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	answerRepo := repository.NewAnswerRepository(db)
	questionRepo := repository.NewQuestionRepository(db)

	lifecycle := service.NewSessionLifecycle(sessionRepo, answerRepo, questionRepo, scoring.NewDefaultScorer(), nil, logger)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), logger)
	grading := service.NewGradingService(sessionRepo, assessmentRepo, answerRepo, lifecycle, service.NewGradingAccessGuard(), activity, nil, validate, logger)
	reassignment := service.NewReassignmentService(sessionRepo, assessmentRepo, answerRepo, activity, nil, logger)
	students := service.NewStudentSessionService(assessmentRepo, questionRepo, lifecycle, validate, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret", AnswerRateLimit: 100}, router.Dependencies{
		SessionHandler:      handler.NewSessionHandler(students, logger),
		GradingHandler:      handler.NewGradingHandler(grading, reassignment, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger),
		JWTMiddleware: func(c *fiber.Ctx) error {
			if id, err := strconv.ParseUint(c.Get(headerTestUser), 10, 64); err == nil {
				c.Locals("user_id", uint(id))
			}
			if role := c.Get(headerTestRole); role != "" {
				c.Locals("user_role", role)
			}
			return c.Next()
		},
		DB: db,
	})

	return app, db
}

func call(t *testing.T, app *fiber.App, method, path string, userID uint, role string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if userID != 0 {
		req.Header.Set(headerTestUser, strconv.FormatUint(uint64(userID), 10))
	}
	if role != "" {
		req.Header.Set(headerTestRole, role)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var decoded apiResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func decodeData(t *testing.T, body apiResponse, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body.Data, target))
}

func decodeDetails(t *testing.T, body apiResponse) map[string]interface{} {
	t.Helper()
	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(body.Details, &details))
	return details
}
