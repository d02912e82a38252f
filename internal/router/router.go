package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SessionHandler      *handler.SessionHandler
	GradingHandler      *handler.GradingHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	DB                  *gorm.DB
	Redis               *redis.Client
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Redis))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Student session actions
	if deps.SessionHandler != nil {
		session := app.Group("/api/v2/assessments/:assessmentID/session", jwtMiddleware, middleware.RequireAuth(middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
		deps.SessionHandler.Register(session, middleware.RateLimit("answers", cfg.AnswerRateLimit, time.Second))
	}

	// Teacher grading and reassignment
	if deps.GradingHandler != nil {
		grading := app.Group("/api/v2/grading/sessions", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.GradingHandler.Register(grading)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v2/notifications", jwtMiddleware, middleware.RequireAuth(middleware.AuthOptions{RequireUser: true}))
		deps.NotificationHandler.Register(notifications)
	}
}
