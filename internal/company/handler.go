package company

import (
	"defter-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// GET /api/company
func GetCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		company, err := Get(c.UserContext(), userID)
		if err != nil {
			return err
		}
		return c.JSON(company)
	}
}

// PUT /api/company
func UpdateCompanyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		company, err := Update(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.JSON(company)
	}
}
