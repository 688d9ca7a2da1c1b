package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/api/middleware"
	"github.com/fablechat/fable-backend/internal/models"
	"github.com/fablechat/fable-backend/internal/services"
)

// GetMemories returns the room's memories ranked by importance
func GetMemories(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var memories []models.Memory
		var err error
		if min := c.QueryInt("min_importance"); min > 0 {
			memories, err = svc.Memory.ListImportant(c.Context(), userContext.UserID, c.Params("id"), min, c.QueryInt("limit"))
		} else {
			memories, err = svc.Memory.List(c.Context(), userContext.UserID, c.Params("id"))
		}
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"memories": memories,
		})
	}
}

// CreateMemory adds a user-authored memory
func CreateMemory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Kind       string `json:"kind"`
			Content    string `json:"content"`
			Importance int    `json:"importance"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Importance == 0 {
			req.Importance = 5
		}

		memory, err := svc.Memory.Create(c.Context(), userContext.UserID, c.Params("id"), req.Kind, req.Content, req.Importance)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(memory)
	}
}

// UpdateMemory edits a memory
func UpdateMemory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Content    string `json:"content"`
			Importance int    `json:"importance"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		memory, err := svc.Memory.Update(c.Context(), userContext.UserID, c.Params("id"), c.Params("memID"), req.Content, req.Importance)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(memory)
	}
}

// DeleteMemory removes a memory
func DeleteMemory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := svc.Memory.Delete(c.Context(), userContext.UserID, c.Params("id"), c.Params("memID")); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"message": "Memory deleted",
		})
	}
}

// CleanupMemories prunes low-value memories beyond a keep count
func CleanupMemories(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		// Absent or zero keep_count means the configured default.
		var req struct {
			KeepCount int `json:"keep_count"`
		}
		if err := c.BodyParser(&req); err != nil {
			req.KeepCount = 0
		}

		deleted, err := svc.Memory.Cleanup(c.Context(), userContext.UserID, c.Params("id"), req.KeepCount)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"deleted": deleted,
		})
	}
}
