package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
)

func appWithUser(userID interface{}, role string, opts middleware.AuthOptions) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, opts))
	return app
}

func TestWithAuthStudentRole(t *testing.T) {
	app := appWithUser(uint(10), "Student", middleware.AuthOptions{Role: middleware.AuthRoleStudent})
	require.Equal(t, fiber.StatusNoContent, perform(t, app).StatusCode)
}

func TestWithAuthStudentRoleDeniesTeacher(t *testing.T) {
	app := appWithUser(uint(10), "teacher", middleware.AuthOptions{Role: middleware.AuthRoleStudent})
	require.Equal(t, fiber.StatusForbidden, perform(t, app).StatusCode)
}

func TestWithAuthTeacherRoleAllowsAdmin(t *testing.T) {
	app := appWithUser(uint(1), "admin", middleware.AuthOptions{Role: middleware.AuthRoleTeacher})
	require.Equal(t, fiber.StatusNoContent, perform(t, app).StatusCode)
}

func TestWithAuthRoleRequiresUser(t *testing.T) {
	app := appWithUser(nil, "teacher", middleware.AuthOptions{Role: middleware.AuthRoleTeacher})
	require.Equal(t, fiber.StatusUnauthorized, perform(t, app).StatusCode)
}

func TestWithAuthAnyHonoursRequireUser(t *testing.T) {
	anonymous := appWithUser(nil, "", middleware.AuthOptions{Role: middleware.AuthRoleAny})
	require.Equal(t, fiber.StatusNoContent, perform(t, anonymous).StatusCode)

	strict := appWithUser(nil, "", middleware.AuthOptions{Role: middleware.AuthRoleAny, RequireUser: true})
	require.Equal(t, fiber.StatusUnauthorized, perform(t, strict).StatusCode)
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
