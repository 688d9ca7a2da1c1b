package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/fablechat/fable-backend/internal/api/middleware"
	"github.com/fablechat/fable-backend/internal/services"
)

// SendMessage sends a user message and returns both persisted turns
func SendMessage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Content string `json:"content"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		result, err := svc.Chat.SendMessage(c.Context(), userContext.UserID, c.Params("id"), req.Content)
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(result)
	}
}

// StreamChat handles a websocket chat session on one room. Each inbound
// message triggers a streamed generation; chunks go back as JSON frames.
func StreamChat(svc *services.Services) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("user_id").(string)
		roomID, _ := conn.Locals("room_id").(string)
		if userID == "" || roomID == "" {
			conn.WriteJSON(fiber.Map{"error": "Not authenticated"})
			return
		}

		for {
			var req struct {
				Content string `json:"content"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}

			chunks, err := svc.Chat.StreamMessage(context.Background(), userID, roomID, req.Content)
			if err != nil {
				if writeErr := conn.WriteJSON(fiber.Map{"error": err.Error()}); writeErr != nil {
					return
				}
				continue
			}

			for chunk := range chunks {
				if err := conn.WriteJSON(chunk); err != nil {
					logrus.WithError(err).Warn("websocket write failed, draining stream")
					for range chunks {
					}
					return
				}
			}
		}
	})
}

// WebSocketUpgrade gates the websocket route and stashes identity for the
// upgraded connection.
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		c.Locals("user_id", userContext.UserID)
		c.Locals("room_id", c.Params("id"))
		return c.Next()
	}
}
