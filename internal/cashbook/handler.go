package cashbook

import (
	"defter-backend/internal/auth"
	"defter-backend/internal/config"
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

// GET /api/income-categories?q=
func ListCategoriesHandler(typ models.CategoryType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		cats, err := ListCategories(c.UserContext(), userID, typ, c.Query("q"))
		if err != nil {
			return err
		}
		return c.JSON(cats)
	}
}

func CreateCategoryHandler(typ models.CategoryType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body CategoryInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cat, err := CreateCategory(c.UserContext(), userID, typ, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	}
}

func UpdateCategoryHandler(typ models.CategoryType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		var body CategoryInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		cat, err := UpdateCategory(c.UserContext(), userID, typ, id, body)
		if err != nil {
			return err
		}
		return c.JSON(cat)
	}
}

func DeleteCategoryHandler(typ models.CategoryType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := DeleteCategory(c.UserContext(), userID, typ, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/incomes?q=&from=&to=&category_id=&sort=&order=
func ListEntriesHandler(kind models.CashEntryKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		q, err := listing.Parse(c, SortKeys...)
		if err != nil {
			return err
		}
		entries, err := List(c.UserContext(), userID, kind, q)
		if err != nil {
			return err
		}
		return c.JSON(entries)
	}
}

func GetEntryHandler(kind models.CashEntryKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		e, err := Get(c.UserContext(), userID, kind, id)
		if err != nil {
			return err
		}
		return c.JSON(e)
	}
}

func CreateEntryHandler(kind models.CashEntryKind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		var body EntryInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		e, err := Create(c.UserContext(), userID, kind, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(e)
	}
}

func UpdateEntryHandler(kind models.CashEntryKind) fiber.Handler {
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
		e, err := Update(c.UserContext(), userID, kind, id, body)
		if err != nil {
			return err
		}
		return c.JSON(e)
	}
}

func DeleteEntryHandler(kind models.CashEntryKind) fiber.Handler {
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

// POST /api/incomes/:id/receipt (multipart, field "file")
func UploadReceiptHandler(kind models.CashEntryKind, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		if fileHeader.Size > MaxReceiptSize {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "receipt is larger than 10 MB")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "could not open file")
		}
		defer file.Close()

		e, err := SaveReceipt(c.UserContext(), userID, kind, id, cfg.ReceiptPath, fileHeader.Filename, file)
		if err != nil {
			return err
		}
		return c.JSON(e)
	}
}

// GET /api/incomes/:id/receipt
func DownloadReceiptHandler(kind models.CashEntryKind, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := parseID(c)
		if err != nil {
			return err
		}
		path, err := ReceiptPath(c.UserContext(), userID, kind, id, cfg.ReceiptPath)
		if err != nil {
			return err
		}
		return c.SendFile(path)
	}
}
