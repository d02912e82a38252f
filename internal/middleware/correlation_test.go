package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagatesHeader(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "run-123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "run-123", resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDReplacesUnsafeValues(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", strings.Repeat("a", maxCorrelationLength+1))
	resp, err := app.Test(req)
	require.NoError(t, err)

	minted := resp.Header.Get("X-Correlation-ID")
	require.NotEmpty(t, minted)
	require.Len(t, minted, 36)
}

func TestContextWithCorrelation(t *testing.T) {
	ctx := ContextWithCorrelation(context.Background(), "  job-7 ")
	require.Equal(t, "job-7", CorrelationIDFromContext(ctx))

	unchanged := ContextWithCorrelation(context.Background(), "bad id")
	require.Empty(t, CorrelationIDFromContext(unchanged))
}
