package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func withIdentity(id uint, role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", id)
		c.Locals("user_role", role)
		return c.Next()
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role   string
		status int
	}{
		{role: "admin", status: fiber.StatusOK},
		{role: "Department_Head", status: fiber.StatusOK},
		{role: "student", status: fiber.StatusForbidden},
		{role: "", status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		app := fiber.New()
		app.Use(withIdentity(1, tc.role))
		app.Use(RequireRole("admin", "department_head"))
		app.Get("/admin", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, "role %q", tc.role)
	}
}

func TestRequireSelfOrRole(t *testing.T) {
	cases := []struct {
		id     uint
		role   string
		path   string
		status int
	}{
		{id: 7, role: "teacher", path: "/stats/7", status: fiber.StatusOK},
		{id: 7, role: "teacher", path: "/stats/8", status: fiber.StatusForbidden},
		{id: 1, role: "admin", path: "/stats/8", status: fiber.StatusOK},
		{id: 7, role: "student", path: "/stats/abc", status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		app := fiber.New()
		app.Use(withIdentity(tc.id, tc.role))
		app.Get("/stats/:id", RequireSelfOrRole("id", "admin", "department_head"), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
}
