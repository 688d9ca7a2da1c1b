package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/auth"
)

const userContextKey = "user_context"

// UserContext carries the authenticated user through a request
type UserContext struct {
	UserID string
	Email  string
}

// AuthRequired validates the bearer token and stores the user context
func AuthRequired(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" || token == authHeader {
			// Websocket clients cannot set headers; accept a token query
			// parameter there.
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authentication token",
			})
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(userContextKey, &UserContext{
			UserID: claims.UserID,
			Email:  claims.Email,
		})

		return c.Next()
	}
}

// GetUserContext returns the authenticated user for the request, or nil
func GetUserContext(c *fiber.Ctx) *UserContext {
	uc, _ := c.Locals(userContextKey).(*UserContext)
	return uc
}
