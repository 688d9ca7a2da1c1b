package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/api/middleware"
	"github.com/fablechat/fable-backend/internal/services"
)

// GetBranches lists the room's branches
func GetBranches(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		branches, err := svc.Branch.ListBranches(c.Context(), userContext.UserID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"branches": branches,
		})
	}
}

// GetActiveBranch returns the room's active path
func GetActiveBranch(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		turns, err := svc.Branch.ActiveBranchTurns(c.Context(), userContext.UserID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"turns": turns,
		})
	}
}

// ForkBranch creates a branch rooted at a turn and switches to it
func ForkBranch(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			ParentTurnID int64  `json:"parent_turn_id"`
			Tag          string `json:"tag"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		tag, err := svc.Branch.Fork(c.Context(), userContext.UserID, c.Params("id"), req.ParentTurnID, req.Tag)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"tag": tag,
		})
	}
}

// SwitchBranch makes a branch the room's active path
func SwitchBranch(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Tag string `json:"tag"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := svc.Branch.Switch(c.Context(), userContext.UserID, c.Params("id"), req.Tag); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"message": "Switched branch",
			"tag":     req.Tag,
		})
	}
}

// DeleteBranch tombstones a branch
func DeleteBranch(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := svc.Branch.Delete(c.Context(), userContext.UserID, c.Params("id"), c.Params("tag")); err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"message": "Branch deleted",
		})
	}
}

// GetTree returns the room's full turn tree
func GetTree(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		tree, err := svc.Branch.BuildTree(c.Context(), userContext.UserID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"tree": tree,
		})
	}
}

// GetTurnPath returns the root-first path ending at a turn
func GetTurnPath(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		turnID, err := strconv.ParseInt(c.Params("turnID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid turn id",
			})
		}

		path, err := svc.Branch.ResolvePathToRoot(c.Context(), userContext.UserID, c.Params("id"), turnID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"path": path,
		})
	}
}

// GetSiblings returns alternative continuations at the same point
func GetSiblings(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		turnID, err := strconv.ParseInt(c.Params("turnID"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid turn id",
			})
		}

		siblings, err := svc.Branch.Siblings(c.Context(), userContext.UserID, c.Params("id"), turnID)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"siblings": siblings,
		})
	}
}
