package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/auth"
)

// Login exchanges credentials for a session token
func Login(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		token, err := authService.Login(c.Context(), req.Email, req.Password)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid credentials",
			})
		}

		return c.JSON(fiber.Map{
			"token": token,
		})
	}
}
