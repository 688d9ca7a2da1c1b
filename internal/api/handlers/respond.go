package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fablechat/fable-backend/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses so the UI can tell
// "nothing to switch to" from "not allowed".
func respondError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		code = fiber.StatusForbidden
	case errors.Is(err, apperr.ErrInvalidArgument):
		code = fiber.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		code = fiber.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		code = fiber.StatusBadGateway
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
