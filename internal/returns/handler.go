package returns

import (
	"time"

	"defter-backend/internal/auth"
	"defter-backend/internal/events"
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

func completedEvent(r *models.Return) events.Event {
	return events.Event{
		Type:       events.ReturnCompleted,
		UserID:     r.UserID,
		EntityID:   r.ID,
		Number:     r.Number,
		Kind:       string(r.Type),
		PartyID:    r.PartyID,
		Amount:     r.Total,
		OccurredAt: time.Now().UTC(),
	}
}

// GET /api/sales-returns?q=&status=&from=&to=&party_id=&sort=&order=
func ListReturnsHandler(typ models.ReturnType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		rows, err := List(c.UserContext(), userID, typ, q)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

func GetReturnHandler(typ models.ReturnType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		ret, err := Get(c.UserContext(), userID, typ, id)
		if err != nil {
			return err
		}
		return c.JSON(ret)
	}
}

func CreateReturnHandler(typ models.ReturnType, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		ret, err := Create(c.UserContext(), userID, typ, body)
		if err != nil {
			return err
		}
		if ret.Status == models.ReturnStatusCompleted {
			pub.Publish(c.UserContext(), completedEvent(ret))
		}
		return c.Status(fiber.StatusCreated).JSON(ret)
	}
}

func UpdateReturnHandler(typ models.ReturnType, pub events.Publisher) fiber.Handler {
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
		ret, err := Update(c.UserContext(), userID, typ, id, body)
		if err != nil {
			return err
		}
		// completed returns reject updates, so this is the transition
		if ret.Status == models.ReturnStatusCompleted {
			pub.Publish(c.UserContext(), completedEvent(ret))
		}
		return c.JSON(ret)
	}
}

func DeleteReturnHandler(typ models.ReturnType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := Delete(c.UserContext(), userID, typ, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
