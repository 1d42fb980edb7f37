package settings

import (
	"defter-backend/internal/auth"
	"defter-backend/internal/config"

	"github.com/gofiber/fiber/v2"
)

// GET /api/settings/notifications
func GetNotificationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		n, err := GetNotifications(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(n)
	}
}

// PUT /api/settings/notifications
func UpdateNotificationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body NotificationsInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		n, err := UpdateNotifications(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.JSON(n)
	}
}

// POST /api/settings/reset-database
func ResetDatabaseHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		if err := ResetDatabase(cfg, userID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"message": "database reset"})
	}
}
