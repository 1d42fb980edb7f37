package cashbook

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"

	"gorm.io/gorm"
)

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type CategoryInput struct {
	Name  string `json:"name"`
	Color string `json:"color"` // #RRGGBB, grey when empty
}

func categoryLabel(typ models.CategoryType) string {
	if typ == models.CategoryTypeExpense {
		return "Expense category"
	}
	return "Income category"
}

// ListCategories returns the categories of one type ordered by name.
func ListCategories(ctx context.Context, userID uint, typ models.CategoryType, search string) ([]models.Category, error) {
	var cats []models.Category
	if err := database.DB.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, typ).
		Find(&cats).Error; err != nil {
		return nil, err
	}
	cats = listing.Filter(cats, search, func(c models.Category) []string { return []string{c.Name} })
	listing.Sort(cats, false, func(a, b models.Category) int { return listing.CompareText(a.Name, b.Name) })
	return cats, nil
}

func findCategory(db *gorm.DB, userID uint, typ models.CategoryType, id uint) (*models.Category, error) {
	var cat models.Category
	if err := db.Where("id = ? AND user_id = ? AND type = ?", id, userID, typ).First(&cat).Error; err != nil {
		return nil, apperr.FromDB("cashbook.FindCategory", "category", err)
	}
	return &cat, nil
}

func CreateCategory(ctx context.Context, userID uint, typ models.CategoryType, in CategoryInput) (*models.Category, error) {
	const op = "cashbook.CreateCategory"
	if !typ.Valid() {
		return nil, apperr.Invalid(op, "type", "unknown category type")
	}

	cat := models.Category{UserID: userID, Type: typ}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyCategory(tx, op, &cat, in); err != nil {
			return err
		}
		if err := tx.Create(&cat).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCategory,
			EntityID:    cat.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", categoryLabel(typ), cat.Name),
			After:       cat,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "category", err)
	}
	return &cat, nil
}

func UpdateCategory(ctx context.Context, userID uint, typ models.CategoryType, id uint, in CategoryInput) (*models.Category, error) {
	const op = "cashbook.UpdateCategory"

	var cat *models.Category
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cat, err = findCategory(tx, userID, typ, id); err != nil {
			return err
		}
		before := *cat
		if err := applyCategory(tx, op, cat, in); err != nil {
			return err
		}
		if err := tx.Save(cat).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCategory,
			EntityID:    cat.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", categoryLabel(typ), cat.Name),
			Before:      before,
			After:       cat,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "category", err)
	}
	return cat, nil
}

// DeleteCategory soft deletes a category no live entry uses.
func DeleteCategory(ctx context.Context, userID uint, typ models.CategoryType, id uint) error {
	const op = "cashbook.DeleteCategory"

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cat, err := findCategory(tx, userID, typ, id)
		if err != nil {
			return err
		}
		if err := checkCategoryUnused(tx, op, cat); err != nil {
			return err
		}
		if err := tx.Delete(cat).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCategory,
			EntityID:    cat.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", categoryLabel(typ), cat.Name),
			Before:      cat,
		})
	})
}

func checkCategoryUnused(tx *gorm.DB, op string, cat *models.Category) error {
	var n int64
	if err := tx.Model(&models.CashEntry{}).Where("category_id = ?", cat.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(op, fmt.Sprintf("category %s is used by %d entries", cat.Name, n))
	}
	return nil
}

// CategoryAfterUndo applies the delete rules when undoing leaves the
// category removed.
func CategoryAfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "cashbook.UndoCategory"

	var cat models.Category
	if err := tx.Unscoped().Where("id = ? AND user_id = ?", log.EntityID, log.UserID).First(&cat).Error; err != nil {
		return apperr.FromDB(op, "category", err)
	}
	if !cat.DeletedAt.Valid {
		return nil
	}
	return checkCategoryUnused(tx, op, &cat)
}

func applyCategory(tx *gorm.DB, op string, cat *models.Category, in CategoryInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid(op, "name", "name is required")
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = models.DefaultCategoryColor
	}
	if !colorRe.MatchString(color) {
		return apperr.Invalid(op, "color", "color must look like #RRGGBB")
	}

	var n int64
	if err := tx.Model(&models.Category{}).
		Where("user_id = ? AND type = ? AND LOWER(name) = ? AND id <> ?", cat.UserID, cat.Type, strings.ToLower(name), cat.ID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Invalid(op, "name", fmt.Sprintf("category %s already exists", name))
	}

	cat.Name = name
	cat.Color = strings.ToUpper(color)
	return nil
}
