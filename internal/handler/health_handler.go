package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Service     string            `json:"service"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports application health. The session store is checked when db is
// set; redis is optional.
func HealthCheck(cfg config.Config, db *gorm.DB, redisClient *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Checks:      map[string]string{},
		}

		ctx, cancel := context.WithTimeout(requestContext(c), 2*time.Second)
		defer cancel()

		if db != nil {
			payload.Checks["database"] = "ok"
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
				payload.Checks["database"] = "unavailable"
				payload.Status = "degraded"
			}
		}
		if redisClient != nil {
			payload.Checks["redis"] = "ok"
			if err := redisClient.Ping(ctx).Err(); err != nil {
				payload.Checks["redis"] = "unavailable"
			}
		}

		if payload.Status != "ok" {
			return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "service degraded", payload)
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
