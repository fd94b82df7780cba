package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := roleSet(roles)

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[currentRole(c)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireSelfOrRole lets a user through when the route parameter names their
// own id, or when they hold one of the roles.
func RequireSelfOrRole(param string, roles ...string) fiber.Handler {
	allowed := roleSet(roles)

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[currentRole(c)]; ok {
			return c.Next()
		}
		target, err := strconv.ParseUint(c.Params(param), 10, 64)
		if id, ok := c.Locals("user_id").(uint); ok && err == nil && id > 0 && uint64(id) == target {
			return c.Next()
		}
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
}

func roleSet(roles []string) map[string]struct{} {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		normalized := strings.ToLower(strings.TrimSpace(role))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	return allowed
}

func currentRole(c *fiber.Ctx) string {
	role, _ := c.Locals("user_role").(string)
	return strings.ToLower(strings.TrimSpace(role))
}
