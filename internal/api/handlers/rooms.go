package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/api/middleware"
	"github.com/fablechat/fable-backend/internal/services"
)

// CreateRoom creates a new room with a persona
func CreateRoom(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Title         string `json:"title"`
			PersonaName   string `json:"persona_name"`
			PersonaPrompt string `json:"persona_prompt"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		room, err := svc.Rooms.Create(c.Context(), userContext.UserID, req.Title, req.PersonaName, req.PersonaPrompt)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(room)
	}
}

// GetRooms returns the user's rooms
func GetRooms(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		rooms, err := svc.Rooms.List(c.Context(), userContext.UserID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"rooms": rooms,
		})
	}
}

// GetRoom returns a specific room
func GetRoom(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		room, err := svc.Rooms.Get(c.Context(), userContext.UserID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(room)
	}
}

// DeleteRoom deletes a room
func DeleteRoom(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := svc.Rooms.Delete(c.Context(), userContext.UserID, c.Params("id")); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"message": "Room deleted successfully",
		})
	}
}
