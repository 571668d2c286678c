package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"vempraca_backend/pkg/utils/jwt"
)

// AuthMiddleware resolves the bearer token to a user and stores its claims in
// c.Locals("user").
func AuthMiddleware(tokens *jwt.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(auth[7:]))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals("user", claims)
		return c.Next()
	}
}

// UserID returns the authenticated user id, or "" when the request is anonymous.
func UserID(c *fiber.Ctx) string {
	claims, ok := c.Locals("user").(*jwt.Claims)
	if !ok || claims == nil {
		return ""
	}
	return claims.UserID()
}
