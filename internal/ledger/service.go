package ledger

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

type GroupInput struct {
	Name        string              `json:"name"`
	Code        string              `json:"code"`
	Class       models.AccountClass `json:"class"`
	Description string              `json:"description"`
}

type EntryInput struct {
	AccountGroupID uint             `json:"account_group_id"`
	Date           string           `json:"date"`
	Side           models.EntrySide `json:"side"`
	Amount         decimal.Decimal  `json:"amount"`
	Description    string           `json:"description"`
	Reference      string           `json:"reference"`
}

// ListGroups returns account groups ordered by class, code and name.
func ListGroups(ctx context.Context, userID uint, class models.AccountClass) ([]models.AccountGroup, error) {
	const op = "ledger.ListGroups"

	db := database.DB.WithContext(ctx).Where("user_id = ?", userID)
	if class != "" {
		if !class.Valid() {
			return nil, apperr.Invalid(op, "class", "unknown account class")
		}
		db = db.Where("class = ?", class)
	}
	var groups []models.AccountGroup
	if err := db.Order("class asc, code asc, name asc").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func findGroup(db *gorm.DB, userID, id uint) (*models.AccountGroup, error) {
	var g models.AccountGroup
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&g).Error; err != nil {
		return nil, apperr.FromDB("ledger.FindGroup", "account group", err)
	}
	return &g, nil
}

func CreateGroup(ctx context.Context, userID uint, in GroupInput) (*models.AccountGroup, error) {
	const op = "ledger.CreateGroup"

	g := models.AccountGroup{UserID: userID}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyGroup(tx, op, &g, in); err != nil {
			return err
		}
		if err := tx.Create(&g).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityAccountGroup,
			EntityID:    g.ID,
			Action:      models.AuditActionCreate,
			Description: "Account group created: " + g.Name,
			After:       g,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "account group", err)
	}
	return &g, nil
}

func UpdateGroup(ctx context.Context, userID, id uint, in GroupInput) (*models.AccountGroup, error) {
	const op = "ledger.UpdateGroup"

	var g *models.AccountGroup
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if g, err = findGroup(tx, userID, id); err != nil {
			return err
		}
		before := *g
		if err := applyGroup(tx, op, g, in); err != nil {
			return err
		}
		if err := tx.Save(g).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityAccountGroup,
			EntityID:    g.ID,
			Action:      models.AuditActionUpdate,
			Description: "Account group updated: " + g.Name,
			Before:      before,
			After:       g,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "account group", err)
	}
	return g, nil
}

// DeleteGroup soft deletes an account group without live entries.
func DeleteGroup(ctx context.Context, userID, id uint) error {
	const op = "ledger.DeleteGroup"

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := findGroup(tx, userID, id)
		if err != nil {
			return err
		}
		if err := checkGroupEmpty(tx, op, g); err != nil {
			return err
		}
		if err := tx.Delete(g).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityAccountGroup,
			EntityID:    g.ID,
			Action:      models.AuditActionDelete,
			Description: "Account group deleted: " + g.Name,
			Before:      g,
		})
	})
}

func checkGroupEmpty(tx *gorm.DB, op string, g *models.AccountGroup) error {
	var n int64
	if err := tx.Model(&models.LedgerEntry{}).Where("account_group_id = ?", g.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return apperr.Conflict(op, fmt.Sprintf("account group %s has %d entries", g.Name, n))
	}
	return nil
}

// GroupAfterUndo applies the delete rules when undoing leaves the group
// removed.
func GroupAfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "ledger.UndoGroup"

	var g models.AccountGroup
	if err := tx.Unscoped().Where("id = ? AND user_id = ?", log.EntityID, log.UserID).First(&g).Error; err != nil {
		return apperr.FromDB(op, "account group", err)
	}
	if !g.DeletedAt.Valid {
		return nil
	}
	return checkGroupEmpty(tx, op, &g)
}

// EntryAfterUndo keeps a restored entry from pointing at a removed group.
func EntryAfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "ledger.UndoEntry"

	var e models.LedgerEntry
	if err := tx.Where("id = ? AND user_id = ?", log.EntityID, log.UserID).Limit(1).Find(&e).Error; err != nil {
		return err
	}
	if e.ID == 0 {
		return nil
	}
	if _, err := findGroup(tx, log.UserID, e.AccountGroupID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict(op, "the account group of this entry was deleted")
		}
		return err
	}
	return nil
}

func applyGroup(tx *gorm.DB, op string, g *models.AccountGroup, in GroupInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid(op, "name", "name is required")
	}
	if !in.Class.Valid() {
		return apperr.Invalid(op, "class", "class must be asset, liability or equity")
	}
	code := strings.TrimSpace(in.Code)
	if code != "" {
		var n int64
		if err := tx.Model(&models.AccountGroup{}).
			Where("user_id = ? AND code = ? AND id <> ?", g.UserID, code, g.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Invalid(op, "code", fmt.Sprintf("code %s is already used", code))
		}
	}
	g.Name = name
	g.Code = code
	g.Class = in.Class
	g.Description = strings.TrimSpace(in.Description)
	return nil
}

// ListEntries returns ledger entries. Search covers description, reference
// and account group name.
func ListEntries(ctx context.Context, userID uint, q listing.Query) ([]models.LedgerEntry, error) {
	db := database.DB.WithContext(ctx).Preload("AccountGroup").Where("user_id = ?", userID)
	if q.AccountGroupID != 0 {
		db = db.Where("account_group_id = ?", q.AccountGroupID)
	}

	var entries []models.LedgerEntry
	if err := q.DateRange(db, "date").Find(&entries).Error; err != nil {
		return nil, err
	}

	entries = listing.Filter(entries, q.Search, func(e models.LedgerEntry) []string {
		fields := []string{e.Description, e.Reference}
		if e.AccountGroup != nil {
			fields = append(fields, e.AccountGroup.Name)
		}
		return fields
	})
	listing.Sort(entries, q.Desc, func(a, b models.LedgerEntry) int {
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

func findEntry(db *gorm.DB, userID, id uint) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&e).Error; err != nil {
		return nil, apperr.FromDB("ledger.FindEntry", "ledger entry", err)
	}
	return &e, nil
}

func getEntry(ctx context.Context, userID, id uint) (*models.LedgerEntry, error) {
	return findEntry(database.DB.WithContext(ctx).Preload("AccountGroup"), userID, id)
}

func CreateEntry(ctx context.Context, userID uint, in EntryInput) (*models.LedgerEntry, error) {
	const op = "ledger.CreateEntry"

	e := models.LedgerEntry{UserID: userID}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyEntry(tx, op, &e, in); err != nil {
			return err
		}
		if err := tx.Omit("AccountGroup").Create(&e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityLedgerEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("Ledger entry created: %s %s", e.Side, e.Amount.StringFixed(2)),
			After:       e,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "ledger entry", err)
	}
	return getEntry(ctx, userID, e.ID)
}

func UpdateEntry(ctx context.Context, userID, id uint, in EntryInput) (*models.LedgerEntry, error) {
	const op = "ledger.UpdateEntry"

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := findEntry(tx, userID, id)
		if err != nil {
			return err
		}
		before := *e
		if err := applyEntry(tx, op, e, in); err != nil {
			return err
		}
		if err := tx.Omit("AccountGroup").Save(e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityLedgerEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Ledger entry updated: %s %s", e.Side, e.Amount.StringFixed(2)),
			Before:      before,
			After:       e,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "ledger entry", err)
	}
	return getEntry(ctx, userID, id)
}

func DeleteEntry(ctx context.Context, userID, id uint) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := findEntry(tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(e).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityLedgerEntry,
			EntityID:    e.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("Ledger entry deleted: %s %s", e.Side, e.Amount.StringFixed(2)),
			Before:      e,
		})
	})
}

func applyEntry(tx *gorm.DB, op string, e *models.LedgerEntry, in EntryInput) error {
	if _, err := findGroup(tx, e.UserID, in.AccountGroupID); err != nil {
		return apperr.Invalid(op, "account_group_id", "account group not found")
	}
	date, err := dates.Parse(in.Date)
	if err != nil {
		return apperr.Invalid(op, "date", err.Error())
	}
	if !in.Side.Valid() {
		return apperr.Invalid(op, "side", "side must be debit or credit")
	}
	if !in.Amount.IsPositive() {
		return apperr.Invalid(op, "amount", "amount must be positive")
	}
	e.AccountGroupID = in.AccountGroupID
	e.AccountGroup = nil
	e.Date = date
	e.Side = in.Side
	e.Amount = in.Amount
	e.Description = strings.TrimSpace(in.Description)
	e.Reference = strings.TrimSpace(in.Reference)
	return nil
}
