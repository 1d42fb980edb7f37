package invoice

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

func event(kind string, inv *models.Invoice) events.Event {
	return events.Event{
		Type:       kind,
		UserID:     inv.UserID,
		EntityID:   inv.ID,
		Number:     inv.Number,
		Kind:       string(inv.Type),
		PartyID:    inv.PartyID,
		Amount:     inv.Total,
		OccurredAt: time.Now().UTC(),
	}
}

// GET /api/sales-invoices?q=&status=&from=&to=&party_id=&sort=&order=
func ListInvoicesHandler(typ models.InvoiceType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		invoices, err := List(c.UserContext(), userID, typ, q)
		if err != nil {
			return err
		}
		return c.JSON(invoices)
	}
}

func GetInvoiceHandler(typ models.InvoiceType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		inv, err := Get(c.UserContext(), userID, typ, id)
		if err != nil {
			return err
		}
		return c.JSON(inv)
	}
}

func CreateInvoiceHandler(typ models.InvoiceType, pub events.Publisher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body Input
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		inv, err := Create(c.UserContext(), userID, typ, body)
		if err != nil {
			return err
		}
		pub.Publish(c.UserContext(), event(events.InvoiceCreated, inv))
		return c.Status(fiber.StatusCreated).JSON(inv)
	}
}

func UpdateInvoiceHandler(typ models.InvoiceType, pub events.Publisher) fiber.Handler {
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
		inv, err := Update(c.UserContext(), userID, typ, id, body)
		if err != nil {
			return err
		}
		// cancelled invoices reject updates, so this is the transition
		if inv.Status == models.InvoiceStatusCancelled {
			pub.Publish(c.UserContext(), event(events.InvoiceCancelled, inv))
		}
		return c.JSON(inv)
	}
}

func DeleteInvoiceHandler(typ models.InvoiceType) fiber.Handler {
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
