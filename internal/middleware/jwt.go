package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/teacher-eval-api/internal/utils"
)

// Claims are the identity claims issued by the upstream auth service. The
// subject holds the numeric user id.
type Claims struct {
	Role   string `json:"role"`
	UserID uint   `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTProtected validates HS256 bearer tokens and exposes user_id and
// user_role to downstream handlers through fiber locals.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}

	return func(c *fiber.Ctx) error {
		authorization := strings.TrimSpace(c.Get("Authorization"))
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "bearer "
		if len(authorization) <= len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}
		tokenString := strings.TrimSpace(authorization[len(bearer):])

		var claims Claims
		token, err := parser.ParseWithClaims(tokenString, &claims, keyFunc)
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := claims.userID()
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token subject")
		}
		role := strings.ToLower(strings.TrimSpace(claims.Role))
		if role == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token carries no role")
		}

		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	}
}

func (c Claims) userID() (uint, error) {
	if c.UserID > 0 {
		return c.UserID, nil
	}
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return 0, fmt.Errorf("missing subject")
	}
	parsed, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid subject %q", subject)
	}
	return uint(parsed), nil
}
