package cashbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var SortKeys = []string{"date", "amount"}

type EntryInput struct {
	CategoryID    *uint                `json:"category_id"`
	Date          string               `json:"date"`
	Amount        decimal.Decimal      `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"payment_method"` // cash when empty
	Reference     string               `json:"reference"`
	Description   string               `json:"description"`
}

func entryLabel(kind models.CashEntryKind) string {
	if kind == models.CashEntryExpense {
		return "Expense"
	}
	return "Income"
}

func describe(e *models.CashEntry) string {
	if e.Description != "" {
		return fmt.Sprintf("%s %s (%s)", e.Amount.StringFixed(2), e.Description, dates.Format(e.Date))
	}
	return fmt.Sprintf("%s (%s)", e.Amount.StringFixed(2), dates.Format(e.Date))
}

// List returns income or expense entries. Search covers description,
// reference and category name.
func List(ctx context.Context, userID uint, kind models.CashEntryKind, q listing.Query) ([]models.CashEntry, error) {
	db := database.DB.WithContext(ctx).Preload("Category").
		Where("user_id = ? AND kind = ?", userID, kind)
	if q.CategoryID != 0 {
		db = db.Where("category_id = ?", q.CategoryID)
	}

	var entries []models.CashEntry
	if err := q.DateRange(db, "date").Find(&entries).Error; err != nil {
		return nil, err
	}

	entries = listing.Filter(entries, q.Search, func(e models.CashEntry) []string {
		fields := []string{e.Description, e.Reference}
		if e.Category != nil {
			fields = append(fields, e.Category.Name)
		}
		return fields
	})
	listing.Sort(entries, q.Desc, func(a, b models.CashEntry) int {
		if q.Sort == "amount" {
			return a.Amount.Cmp(b.Amount)
		}
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.ID) - int(b.ID)
	})
	return entries, nil
}

func Get(ctx context.Context, userID uint, kind models.CashEntryKind, id uint) (*models.CashEntry, error) {
	return find(database.DB.WithContext(ctx).Preload("Category"), userID, kind, id)
}

func find(db *gorm.DB, userID uint, kind models.CashEntryKind, id uint) (*models.CashEntry, error) {
	var e models.CashEntry
	if err := db.Where("id = ? AND user_id = ? AND kind = ?", id, userID, kind).First(&e).Error; err != nil {
		return nil, apperr.FromDB("cashbook.Find", strings.ToLower(entryLabel(kind)), err)
	}
	return &e, nil
}

func Create(ctx context.Context, userID uint, kind models.CashEntryKind, in EntryInput) (*models.CashEntry, error) {
	const op = "cashbook.Create"
	if !kind.Valid() {
		return nil, apperr.Invalid(op, "kind", "unknown entry kind")
	}

	e := models.CashEntry{UserID: userID, Kind: kind}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyEntry(tx, op, &e, in); err != nil {
			return err
		}
		if err := tx.Omit("Category").Create(&e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCashEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", entryLabel(kind), describe(&e)),
			After:       e,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "entry", err)
	}
	return Get(ctx, userID, kind, e.ID)
}

func Update(ctx context.Context, userID uint, kind models.CashEntryKind, id uint, in EntryInput) (*models.CashEntry, error) {
	const op = "cashbook.Update"

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := find(tx, userID, kind, id)
		if err != nil {
			return err
		}
		before := *e
		if err := applyEntry(tx, op, e, in); err != nil {
			return err
		}
		if err := tx.Omit("Category").Save(e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCashEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", entryLabel(kind), describe(e)),
			Before:      before,
			After:       e,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "entry", err)
	}
	return Get(ctx, userID, kind, id)
}

// Delete soft deletes the entry. The receipt file stays on disk so an undo
// can bring it back.
func Delete(ctx context.Context, userID uint, kind models.CashEntryKind, id uint) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := find(tx, userID, kind, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCashEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", entryLabel(kind), describe(e)),
			Before:      e,
		})
	})
}

// EntryAfterUndo keeps a restored entry from pointing at a removed category.
func EntryAfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "cashbook.Undo"

	var e models.CashEntry
	if err := tx.Where("id = ? AND user_id = ?", log.EntityID, log.UserID).Limit(1).Find(&e).Error; err != nil {
		return err
	}
	if e.ID == 0 || e.CategoryID == nil {
		return nil
	}
	if _, err := findCategory(tx, log.UserID, e.Kind.CategoryType(), *e.CategoryID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict(op, "the category of this entry was deleted")
		}
		return err
	}
	return nil
}

func applyEntry(tx *gorm.DB, op string, e *models.CashEntry, in EntryInput) error {
	date, err := dates.Parse(in.Date)
	if err != nil {
		return apperr.Invalid(op, "date", err.Error())
	}
	if !in.Amount.IsPositive() {
		return apperr.Invalid(op, "amount", "amount must be positive")
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentMethodCash
	}
	if !in.PaymentMethod.Valid() {
		return apperr.Invalid(op, "payment_method", "unknown payment method")
	}
	if in.CategoryID != nil {
		if _, err := findCategory(tx, e.UserID, e.Kind.CategoryType(), *in.CategoryID); err != nil {
			return apperr.Invalid(op, "category_id", fmt.Sprintf("%s category not found", e.Kind))
		}
	}

	e.CategoryID = in.CategoryID
	e.Category = nil
	e.Date = date
	e.Amount = in.Amount
	e.PaymentMethod = in.PaymentMethod
	e.Reference = strings.TrimSpace(in.Reference)
	e.Description = strings.TrimSpace(in.Description)
	return nil
}
