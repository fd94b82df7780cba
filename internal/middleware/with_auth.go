package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// AuthOptions configures the WithAuth helper. An empty Roles list admits any
// authenticated user.
type AuthOptions struct {
	Roles       []string
	RequireUser bool
}

// WithAuth wraps a single handler with authentication and role guards, for
// routes that sit outside a role-restricted group.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	allowed := roleSet(opts.Roles)
	requireUser := opts.RequireUser || len(allowed) > 0

	return func(c *fiber.Ctx) error {
		id, _ := c.Locals("user_id").(uint)
		if requireUser && id == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if len(allowed) > 0 {
			role := currentRole(c)
			if _, ok := allowed[role]; !ok {
				return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"role": role})
			}
		}

		return handler(c)
	}
}
