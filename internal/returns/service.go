package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/invoice"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"
	"defter-backend/internal/money"
	"defter-backend/internal/numbering"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var SortKeys = []string{"date", "amount", "number"}

type ItemInput struct {
	InvoiceItemID uint             `json:"invoice_item_id"`
	Quantity      decimal.Decimal  `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price"` // invoice line price when omitted
	Description   string           `json:"description"`
	Reason        string           `json:"reason"`
}

type Input struct {
	Number    string              `json:"number"`
	InvoiceID uint                `json:"invoice_id"`
	Date      string              `json:"date"`
	Status    models.ReturnStatus `json:"status"` // defaults to pending
	Notes     string              `json:"notes"`
	Items     []ItemInput         `json:"items"`
}

func series(typ models.ReturnType) numbering.Series {
	prefix := "SR"
	if typ == models.ReturnTypePurchase {
		prefix = "PR"
	}
	return numbering.Series{Model: &models.Return{}, TypeColumn: "type", TypeValue: string(typ), Prefix: prefix}
}

func label(typ models.ReturnType) string {
	if typ == models.ReturnTypePurchase {
		return "Purchase return"
	}
	return "Sales return"
}

func final(s models.ReturnStatus) bool {
	return s == models.ReturnStatusCompleted || s == models.ReturnStatusRejected
}

func List(ctx context.Context, userID uint, typ models.ReturnType, q listing.Query) ([]models.Return, error) {
	const op = "returns.List"

	db := database.DB.WithContext(ctx).Preload("Party").Preload("Invoice").Preload("Items").
		Where("user_id = ? AND type = ?", userID, typ)
	if q.Status != "" {
		if !models.ReturnStatus(q.Status).Valid() {
			return nil, apperr.Invalid(op, "status", "unknown return status")
		}
		db = db.Where("status = ?", q.Status)
	}
	if q.PartyID != 0 {
		db = db.Where("party_id = ?", q.PartyID)
	}

	var rows []models.Return
	if err := q.DateRange(db, "date").Find(&rows).Error; err != nil {
		return nil, err
	}

	rows = listing.Filter(rows, q.Search, func(r models.Return) []string {
		fields := []string{r.Number}
		if r.Invoice != nil {
			fields = append(fields, r.Invoice.Number)
		}
		if r.Party != nil {
			fields = append(fields, r.Party.Name)
		}
		return fields
	})
	listing.Sort(rows, q.Desc, func(a, b models.Return) int {
		switch q.Sort {
		case "amount":
			return a.Total.Cmp(b.Total)
		case "number":
			return strings.Compare(a.Number, b.Number)
		default:
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return int(a.ID) - int(b.ID)
		}
	})
	return rows, nil
}

func Get(ctx context.Context, userID uint, typ models.ReturnType, id uint) (*models.Return, error) {
	return find(database.DB.WithContext(ctx).Preload("Party").Preload("Invoice").Preload("Items"), userID, typ, id)
}

func find(db *gorm.DB, userID uint, typ models.ReturnType, id uint) (*models.Return, error) {
	var r models.Return
	if err := db.Where("id = ? AND user_id = ? AND type = ?", id, userID, typ).First(&r).Error; err != nil {
		return nil, apperr.FromDB("returns.Find", strings.ToLower(label(typ)), err)
	}
	return &r, nil
}

func Create(ctx context.Context, userID uint, typ models.ReturnType, in Input) (*models.Return, error) {
	const op = "returns.Create"
	if !typ.Valid() {
		return nil, apperr.Invalid(op, "type", "unknown return type")
	}

	ret := models.Return{UserID: userID, Type: typ}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx, op, &ret, in); err != nil {
			return err
		}
		if err := tx.Omit("Party", "Invoice").Create(&ret).Error; err != nil {
			return apperr.FromDB(op, "return", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityReturn,
			EntityID:    ret.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", label(typ), ret.Number),
			After:       ret,
		})
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, userID, typ, ret.ID)
}

// Update replaces the return and its lines. Completed and rejected returns
// are final.
func Update(ctx context.Context, userID uint, typ models.ReturnType, id uint, in Input) (*models.Return, error) {
	const op = "returns.Update"

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ret, err := find(tx.Preload("Items"), userID, typ, id)
		if err != nil {
			return err
		}
		if final(ret.Status) {
			return apperr.Conflict(op, fmt.Sprintf("a %s return cannot be changed", ret.Status))
		}
		before := *ret
		before.Items = append([]models.ReturnItem(nil), ret.Items...)

		if err := apply(tx, op, ret, in); err != nil {
			return err
		}
		if err := tx.Omit("Party", "Invoice", "Items").Save(ret).Error; err != nil {
			return apperr.FromDB(op, "return", err)
		}
		if err := ret.ReplaceItems(tx); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityReturn,
			EntityID:    ret.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", label(typ), ret.Number),
			Before:      before,
			After:       ret,
		})
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, userID, typ, id)
}

func Delete(ctx context.Context, userID uint, typ models.ReturnType, id uint) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ret, err := find(tx.Preload("Items"), userID, typ, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ret).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityReturn,
			EntityID:    ret.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", label(typ), ret.Number),
			Before:      ret,
		})
	})
}

// apply validates in against the original invoice and copies it onto r.
// Party and tax rate come from the invoice; each line may return at most
// what is left after the other non-rejected returns.
func apply(tx *gorm.DB, op string, r *models.Return, in Input) error {
	if in.InvoiceID == 0 {
		return apperr.Invalid(op, "invoice_id", "invoice is required")
	}
	inv, err := invoice.Find(tx.Preload("Items"), r.UserID, r.Type.InvoiceType(), in.InvoiceID)
	if err != nil {
		return apperr.Invalid(op, "invoice_id", "invoice not found")
	}
	if !inv.IsIssued() {
		return apperr.Invalid(op, "invoice_id", fmt.Sprintf("invoice %s is %s", inv.Number, inv.Status))
	}
	if r.ID != 0 && r.InvoiceID != inv.ID {
		return apperr.Invalid(op, "invoice_id", "the invoice of a return cannot be changed")
	}
	date, err := dates.Parse(in.Date)
	if err != nil {
		return apperr.Invalid(op, "date", err.Error())
	}
	if date.Before(inv.Date) {
		return apperr.Invalid(op, "date", "return date cannot be before the invoice date")
	}
	if in.Status == "" {
		in.Status = models.ReturnStatusPending
	}
	if !in.Status.Valid() {
		return apperr.Invalid(op, "status", "unknown return status")
	}
	if len(in.Items) == 0 {
		return apperr.Invalid(op, "items", "at least one item is required")
	}

	lineByID := make(map[uint]models.InvoiceItem, len(inv.Items))
	for _, it := range inv.Items {
		lineByID[it.ID] = it
	}
	returned, err := invoice.ReturnedQuantities(tx, inv.ID, r.ID)
	if err != nil {
		return err
	}

	lines := make([]money.Line, len(in.Items))
	items := make([]models.ReturnItem, len(in.Items))
	seen := map[uint]bool{}
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		line, ok := lineByID[it.InvoiceItemID]
		if !ok {
			return apperr.Invalid(op, field+".invoice_item_id", fmt.Sprintf("line not found on invoice %s", inv.Number))
		}
		if seen[line.ID] {
			return apperr.Invalid(op, field+".invoice_item_id", "an invoice line can appear only once")
		}
		seen[line.ID] = true

		if !it.Quantity.IsPositive() {
			return apperr.Invalid(op, field+".quantity", "quantity must be positive")
		}
		left := line.Quantity.Sub(returned[line.ID])
		if it.Quantity.GreaterThan(left) {
			return apperr.Invalid(op, field+".quantity", fmt.Sprintf("only %s of %q can still be returned", left.String(), line.Description))
		}
		price := line.UnitPrice
		if it.UnitPrice != nil {
			price = *it.UnitPrice
		}
		if price.IsNegative() {
			return apperr.Invalid(op, field+".unit_price", "unit price cannot be negative")
		}
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			desc = line.Description
		}
		lines[i] = money.Line{Quantity: it.Quantity, UnitPrice: price}
		items[i] = models.ReturnItem{
			InvoiceItemID: line.ID,
			ProductID:     line.ProductID,
			Description:   desc,
			Quantity:      it.Quantity,
			UnitPrice:     price,
			Reason:        strings.TrimSpace(it.Reason),
		}
	}
	totals := money.Compute(lines, inv.TaxRate)
	for i := range items {
		items[i].LineTotal = totals.LineTotals[i]
	}

	number := strings.TrimSpace(in.Number)
	s := series(r.Type)
	if number == "" {
		number = r.Number
	}
	if number == "" {
		if number, err = numbering.Next(tx, r.UserID, s); err != nil {
			return err
		}
	} else if taken, err := numbering.Taken(tx, r.UserID, s, number, r.ID); err != nil {
		return err
	} else if taken {
		return apperr.Invalid(op, "number", fmt.Sprintf("number %s is already used", number))
	}

	r.Number = number
	r.InvoiceID = inv.ID
	r.Invoice = nil
	r.PartyID = inv.PartyID
	r.Party = nil
	r.Date = date
	r.Status = in.Status
	r.Notes = strings.TrimSpace(in.Notes)
	r.Items = items
	r.Subtotal = totals.Subtotal
	r.TaxRate = inv.TaxRate
	r.TaxAmount = totals.TaxAmount
	r.Total = totals.Total
	return nil
}

// AfterUndo rejects an undo that would bring back a return on a removed or
// changed invoice, or more returned quantity than the invoice lines hold.
func AfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "returns.Undo"

	var ret models.Return
	if err := tx.Preload("Items").Where("id = ? AND user_id = ?", log.EntityID, log.UserID).Limit(1).Find(&ret).Error; err != nil {
		return err
	}
	if ret.ID == 0 {
		return nil
	}
	inv, err := invoice.Find(tx, log.UserID, ret.Type.InvoiceType(), ret.InvoiceID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Conflict(op, "the invoice of this return was deleted")
		}
		return err
	}
	if !inv.IsIssued() {
		return apperr.Conflict(op, fmt.Sprintf("invoice %s is %s", inv.Number, inv.Status))
	}
	var lines []models.InvoiceItem
	if err := tx.Where("invoice_id = ?", ret.InvoiceID).Find(&lines).Error; err != nil {
		return err
	}
	current := make(map[uint]bool, len(lines))
	for _, line := range lines {
		current[line.ID] = true
	}
	for _, it := range ret.Items {
		if !current[it.InvoiceItemID] {
			return apperr.Conflict(op, fmt.Sprintf("invoice %s was changed after this return", inv.Number))
		}
	}
	if !ret.Counts() {
		return nil
	}
	returned, err := invoice.ReturnedQuantities(tx, ret.InvoiceID, 0)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if returned[line.ID].GreaterThan(line.Quantity) {
			return apperr.Conflict(op, fmt.Sprintf("more of %q would be returned than was invoiced", line.Description))
		}
	}
	return nil
}
