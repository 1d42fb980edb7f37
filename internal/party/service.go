package party

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SortKeys accepted by List; the first is the default.
var SortKeys = []string{"name", "balance", "date"}

type Input struct {
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone"`
	Address        string           `json:"address"`
	TaxNumber      string           `json:"tax_number"`
	Notes          string           `json:"notes"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
}

func label(kind models.PartyKind) string {
	if kind == models.PartyKindVendor {
		return "Vendor"
	}
	return "Customer"
}

func List(ctx context.Context, userID uint, kind models.PartyKind, q listing.Query) ([]models.Party, error) {
	db := database.DB.WithContext(ctx)

	var parties []models.Party
	if err := q.DateRange(db.Where("user_id = ? AND kind = ?", userID, kind), "created_at").
		Find(&parties).Error; err != nil {
		return nil, err
	}

	balances, err := Balances(db, userID, kind)
	if err != nil {
		return nil, err
	}
	for i := range parties {
		parties[i].Balance = parties[i].OpeningBalance.Add(balances[parties[i].ID])
	}

	parties = listing.Filter(parties, q.Search, func(p models.Party) []string {
		return []string{p.Name, p.Email, p.Phone}
	})
	listing.Sort(parties, q.Desc, func(a, b models.Party) int {
		switch q.Sort {
		case "balance":
			return a.Balance.Cmp(b.Balance)
		case "date":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return listing.CompareText(a.Name, b.Name)
		}
	})
	return parties, nil
}

func Get(ctx context.Context, userID uint, kind models.PartyKind, id uint) (*models.Party, error) {
	db := database.DB.WithContext(ctx)
	p, err := Find(db, userID, kind, id)
	if err != nil {
		return nil, err
	}
	balances, err := Balances(db.Where("party_id = ?", id), userID, kind)
	if err != nil {
		return nil, err
	}
	p.Balance = p.OpeningBalance.Add(balances[p.ID])
	return p, nil
}

// Find loads a live party of the given kind owned by userID.
func Find(db *gorm.DB, userID uint, kind models.PartyKind, id uint) (*models.Party, error) {
	var p models.Party
	if err := db.Where("id = ? AND user_id = ? AND kind = ?", id, userID, kind).First(&p).Error; err != nil {
		return nil, apperr.FromDB("party.Find", strings.ToLower(label(kind)), err)
	}
	return &p, nil
}

func Create(ctx context.Context, userID uint, kind models.PartyKind, in Input) (*models.Party, error) {
	const op = "party.Create"
	if !kind.Valid() {
		return nil, apperr.Invalid(op, "kind", "unknown party kind")
	}

	p := models.Party{UserID: userID, Kind: kind}
	if err := apply(op, &p, in); err != nil {
		return nil, err
	}

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityParty,
			EntityID:    p.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", label(kind), p.Name),
			After:       p,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "party", err)
	}
	p.Balance = p.OpeningBalance
	return &p, nil
}

func Update(ctx context.Context, userID uint, kind models.PartyKind, id uint, in Input) (*models.Party, error) {
	const op = "party.Update"

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := Find(tx, userID, kind, id)
		if err != nil {
			return err
		}
		before := *p
		if err := apply(op, p, in); err != nil {
			return err
		}
		if err := tx.Save(p).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityParty,
			EntityID:    p.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", label(kind), p.Name),
			Before:      before,
			After:       p,
		})
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, userID, kind, id)
}

// Delete soft deletes a party that no live document references.
func Delete(ctx context.Context, userID uint, kind models.PartyKind, id uint) error {
	const op = "party.Delete"

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := Find(tx, userID, kind, id)
		if err != nil {
			return err
		}
		if err := checkUnreferenced(tx, op, p); err != nil {
			return err
		}
		if err := tx.Delete(p).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityParty,
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", label(kind), p.Name),
			Before:      p,
		})
	})
}

// checkUnreferenced returns a Conflict while live documents reference p.
func checkUnreferenced(tx *gorm.DB, op string, p *models.Party) error {
	for _, ref := range []any{&models.Invoice{}, &models.Payment{}, &models.Return{}} {
		var n int64
		if err := tx.Model(ref).Where("party_id = ?", p.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict(op, strings.ToLower(label(p.Kind))+" has documents and cannot be deleted")
		}
	}
	return nil
}

// RequireLive returns a Conflict when the party was deleted, for documents
// that undo brings back.
func RequireLive(tx *gorm.DB, op string, userID uint, kind models.PartyKind, id uint) error {
	if _, err := Find(tx, userID, kind, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict(op, "the "+string(kind)+" of this document was deleted")
		}
		return err
	}
	return nil
}

// AfterUndo applies the delete rules when undoing leaves the party removed.
func AfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "party.Undo"

	var p models.Party
	if err := tx.Unscoped().Where("id = ? AND user_id = ?", log.EntityID, log.UserID).First(&p).Error; err != nil {
		return apperr.FromDB(op, "party", err)
	}
	if !p.DeletedAt.Valid {
		return nil
	}
	return checkUnreferenced(tx, op, &p)
}

func apply(op string, p *models.Party, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid(op, "name", "name is required")
	}
	p.Name = name
	p.Email = strings.TrimSpace(strings.ToLower(in.Email))
	p.Phone = strings.TrimSpace(in.Phone)
	p.Address = strings.TrimSpace(in.Address)
	p.TaxNumber = strings.TrimSpace(in.TaxNumber)
	p.Notes = strings.TrimSpace(in.Notes)
	if in.OpeningBalance != nil {
		p.OpeningBalance = *in.OpeningBalance
	}
	return nil
}

type amountRow struct {
	PartyID uint
	Amount  decimal.Decimal
}

// Balances returns the document movement per party, excluding opening
// balances: issued invoice totals minus completed payments and completed
// returns of the matching direction. Conditions already on db (such as a
// party_id filter) apply to every query.
func Balances(db *gorm.DB, userID uint, kind models.PartyKind) (map[uint]decimal.Decimal, error) {
	invoiceType := models.InvoiceTypeSales
	direction := models.PaymentDirectionIn
	if kind == models.PartyKindVendor {
		invoiceType = models.InvoiceTypePurchase
		direction = models.PaymentDirectionOut
	}

	out := map[uint]decimal.Decimal{}
	add := func(rows []amountRow, sign int64) {
		for _, r := range rows {
			out[r.PartyID] = out[r.PartyID].Add(r.Amount.Mul(decimal.NewFromInt(sign)))
		}
	}

	var invoices, payments, returns []amountRow
	if err := db.Session(&gorm.Session{}).Model(&models.Invoice{}).
		Select("party_id, total AS amount").
		Where("user_id = ? AND type = ? AND status NOT IN ?", userID, invoiceType,
			[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusCancelled}).
		Scan(&invoices).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Model(&models.Payment{}).
		Select("party_id, amount").
		Where("user_id = ? AND direction = ? AND status = ?", userID, direction, models.PaymentStatusCompleted).
		Scan(&payments).Error; err != nil {
		return nil, err
	}
	if err := db.Session(&gorm.Session{}).Model(&models.Return{}).
		Select("party_id, total AS amount").
		Where("user_id = ? AND type = ? AND status = ?", userID, invoiceType, models.ReturnStatusCompleted).
		Scan(&returns).Error; err != nil {
		return nil, err
	}

	add(invoices, 1)
	add(payments, -1)
	add(returns, -1)
	return out, nil
}
