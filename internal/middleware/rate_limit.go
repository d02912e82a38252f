package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// RateLimit throttles a route per caller. Authenticated callers are keyed by user id,
// anonymous ones by IP. Requests on different assessments share one budget.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Second
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			caller := c.IP()
			if userID := c.Locals("user_id"); userID != nil {
				caller = fmt.Sprintf("user:%v", userID)
			}
			return identifier + ":" + caller
		},
		LimitReached: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%.0f", window.Seconds()))
			return utils.Fail(c, fiber.StatusTooManyRequests, "too many requests", fiber.Map{"limit": identifier})
		},
	})
}
