package party

import (
	"defter-backend/internal/auth"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// GET /api/customers, /api/vendors
func ListPartiesHandler(kind models.PartyKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		parties, err := List(c.UserContext(), userID, kind, q)
		if err != nil {
			return err
		}
		return c.JSON(parties)
	}
}

func GetPartyHandler(kind models.PartyKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		p, err := Get(c.UserContext(), userID, kind, id)
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

func CreatePartyHandler(kind models.PartyKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		p, err := Create(c.UserContext(), userID, kind, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

func UpdatePartyHandler(kind models.PartyKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		p, err := Update(c.UserContext(), userID, kind, id, body)
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

func DeletePartyHandler(kind models.PartyKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := Delete(c.UserContext(), userID, kind, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
