package apperr

import (
	"errors"

	"defter-backend/internal/logger"

	"github.com/gofiber/fiber/v2"
)

// Handler is the fiber ErrorHandler. Known errors become {"error","field"}
// bodies; unknown ones are logged and hidden behind a generic message.
func Handler(c *fiber.Ctx, err error) error {
	status := Status(err)
	if status == fiber.StatusInternalServerError {
		requestID, _ := c.Locals("requestid").(string)
		log := logger.WithComponent("http")
		log.Error().Err(err).
			Str("path", c.Path()).
			Str("request_id", requestID).
			Msg("unexpected error")
		return c.Status(status).JSON(fiber.Map{"error": "unexpected server error"})
	}

	body := fiber.Map{"error": err.Error()}
	var fe *fiber.Error
	var ae *Error
	if errors.As(err, &fe) {
		body["error"] = fe.Message
	} else if errors.As(err, &ae) {
		body["error"] = ae.Msg
		if ae.Field != "" {
			body["field"] = ae.Field
		}
	}
	return c.Status(status).JSON(body)
}
