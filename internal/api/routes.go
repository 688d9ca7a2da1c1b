package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/api/handlers"
	"github.com/fablechat/fable-backend/internal/api/middleware"
	"github.com/fablechat/fable-backend/internal/auth"
	"github.com/fablechat/fable-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, authService *auth.Service) {
	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "fable-backend",
		})
	})

	api.Post("/auth/login", handlers.Login(authService))

	protected := api.Group("", middleware.AuthRequired(authService))

	// Rooms
	protected.Post("/rooms", handlers.CreateRoom(svc))
	protected.Get("/rooms", handlers.GetRooms(svc))
	protected.Get("/rooms/:id", handlers.GetRoom(svc))
	protected.Delete("/rooms/:id", handlers.DeleteRoom(svc))

	// Chat
	protected.Post("/rooms/:id/messages", handlers.SendMessage(svc))
	protected.Get("/ws/rooms/:id", handlers.WebSocketUpgrade(), handlers.StreamChat(svc))

	// Branches
	protected.Get("/rooms/:id/branches", handlers.GetBranches(svc))
	protected.Get("/rooms/:id/branches/active", handlers.GetActiveBranch(svc))
	protected.Post("/rooms/:id/branches/fork", handlers.ForkBranch(svc))
	protected.Post("/rooms/:id/branches/switch", handlers.SwitchBranch(svc))
	protected.Delete("/rooms/:id/branches/:tag", handlers.DeleteBranch(svc))
	protected.Get("/rooms/:id/tree", handlers.GetTree(svc))
	protected.Get("/rooms/:id/turns/:turnID/siblings", handlers.GetSiblings(svc))
	protected.Get("/rooms/:id/turns/:turnID/path", handlers.GetTurnPath(svc))

	// Memories
	protected.Get("/rooms/:id/memories", handlers.GetMemories(svc))
	protected.Post("/rooms/:id/memories", handlers.CreateMemory(svc))
	protected.Put("/rooms/:id/memories/:memID", handlers.UpdateMemory(svc))
	protected.Delete("/rooms/:id/memories/:memID", handlers.DeleteMemory(svc))
	protected.Post("/rooms/:id/memories/cleanup", handlers.CleanupMemories(svc))
}
