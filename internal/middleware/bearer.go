package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kivu-credit/kivu_credit/internal/auth"
	"github.com/kivu-credit/kivu_credit/internal/config"
)

// BearerAuth validates bearer tokens and exposes the account principal and
// role to downstream handlers.
func BearerAuth(cfg config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := auth.ParseAndVerifyHS256(tokenStr, []byte(cfg.JWTSecret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		sub, _ := claims["sub"].(string)
		if sub == "" {
			return fiber.NewError(http.StatusUnauthorized, "token has no subject")
		}
		role, _ := claims["role"].(string)

		c.Locals("account", sub)
		c.Locals("role", role)
		return c.Next()
	}
}

// RequireOperator rejects requests whose token does not carry the operator role.
func RequireOperator() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if role, _ := c.Locals("role").(string); role != auth.RoleOperator {
			return fiber.NewError(http.StatusForbidden, "operator role required")
		}
		return c.Next()
	}
}
