package payment

import (
	"time"

	"defter-backend/internal/auth"
	"defter-backend/internal/events"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const IdempotencyHeader = "Idempotency-Key"

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func completedEvent(p *models.Payment) events.Event {
	return events.Event{
		Type:       events.PaymentCompleted,
		UserID:     p.UserID,
		EntityID:   p.ID,
		Number:     p.Number,
		Kind:       string(p.Direction),
		PartyID:    p.PartyID,
		Amount:     p.Amount,
		OccurredAt: time.Now().UTC(),
	}
}

// GET /api/payments-in?q=&status=&from=&to=&party_id=&sort=&order=
func ListPaymentsHandler(dir models.PaymentDirection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		payments, err := List(c.UserContext(), userID, dir, q)
		if err != nil {
			return err
		}
		return c.JSON(payments)
	}
}

func GetPaymentHandler(dir models.PaymentDirection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		p, err := Get(c.UserContext(), userID, dir, id)
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
}

// POST /api/payments-in
// A replayed Idempotency-Key answers 200 with the original payment.
func CreatePaymentHandler(dir models.PaymentDirection, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		key := c.Get(IdempotencyHeader)
		p, created, err := Create(c.UserContext(), userID, dir, body, key)
		if err != nil {
			return err
		}
		if !created {
			return c.JSON(p)
		}
		if p.Status == models.PaymentStatusCompleted {
			pub.Publish(c.UserContext(), completedEvent(p))
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

func UpdatePaymentHandler(dir models.PaymentDirection, pub events.Publisher) fiber.Handler {
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
		p, completed, err := Update(c.UserContext(), userID, dir, id, body)
		if err != nil {
			return err
		}
		if completed {
			pub.Publish(c.UserContext(), completedEvent(p))
		}
		return c.JSON(p)
	}
}

func DeletePaymentHandler(dir models.PaymentDirection) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := Delete(c.UserContext(), userID, dir, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
