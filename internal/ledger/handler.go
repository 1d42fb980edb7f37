package ledger

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

// GET /api/account-groups?class=
func ListGroupsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		groups, err := ListGroups(c.UserContext(), userID, models.AccountClass(c.Query("class")))
		if err != nil {
			return err
		}
		return c.JSON(groups)
	}
}

func CreateGroupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body GroupInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		g, err := CreateGroup(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(g)
	}
}

func UpdateGroupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var body GroupInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		g, err := UpdateGroup(c.UserContext(), userID, id, body)
		if err != nil {
			return err
		}
		return c.JSON(g)
	}
}

func DeleteGroupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := DeleteGroup(c.UserContext(), userID, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/ledger-entries?q=&from=&to=&account_group_id=&sort=&order=
func ListEntriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		entries, err := ListEntries(c.UserContext(), userID, q)
		if err != nil {
			return err
		}
		return c.JSON(entries)
	}
}

func CreateEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body EntryInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		e, err := CreateEntry(c.UserContext(), userID, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

func UpdateEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var body EntryInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		e, err := UpdateEntry(c.UserContext(), userID, id, body)
		if err != nil {
			return err
		}
		return c.JSON(e)
	}
}

func DeleteEntryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := DeleteEntry(c.UserContext(), userID, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
