package invoice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/company"
	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"
	"defter-backend/internal/money"
	"defter-backend/internal/numbering"
	"defter-backend/internal/party"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var SortKeys = []string{"date", "amount", "number", "due_date"}

type ItemInput struct {
	ProductID   *uint           `json:"product_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type Input struct {
	Number  string               `json:"number"`
	PartyID uint                 `json:"party_id"`
	Date    string               `json:"date"`     // YYYY-MM-DD
	DueDate string               `json:"due_date"` // optional
	Status  models.InvoiceStatus `json:"status"`   // draft, unpaid or cancelled
	TaxRate *decimal.Decimal     `json:"tax_rate"` // percent, company default when omitted
	Notes   string               `json:"notes"`
	Items   []ItemInput          `json:"items"`
}

func series(typ models.InvoiceType) numbering.Series {
	prefix := "INV"
	if typ == models.InvoiceTypePurchase {
		prefix = "BILL"
	}
	return numbering.Series{Model: &models.Invoice{}, TypeColumn: "type", TypeValue: string(typ), Prefix: prefix}
}

func label(typ models.InvoiceType) string {
	if typ == models.InvoiceTypePurchase {
		return "Purchase invoice"
	}
	return "Sales invoice"
}

func List(ctx context.Context, userID uint, typ models.InvoiceType, q listing.Query) ([]models.Invoice, error) {
	const op = "invoice.List"
	if err := SweepOverdue(ctx, userID); err != nil {
		return nil, err
	}

	db := database.DB.WithContext(ctx).Preload("Party").
		Where("user_id = ? AND type = ?", userID, typ)
	if q.Status != "" {
		if !models.InvoiceStatus(q.Status).Valid() {
			return nil, apperr.Invalid(op, "status", "unknown invoice status")
		}
		db = db.Where("status = ?", q.Status)
	}
	if q.PartyID != 0 {
		db = db.Where("party_id = ?", q.PartyID)
	}

	var invoices []models.Invoice
	if err := q.DateRange(db, "date").Find(&invoices).Error; err != nil {
		return nil, err
	}

	invoices = listing.Filter(invoices, q.Search, func(i models.Invoice) []string {
		return []string{i.Number, partyName(i.Party), i.Notes}
	})
	listing.Sort(invoices, q.Desc, func(a, b models.Invoice) int {
		switch q.Sort {
		case "amount":
			return a.Total.Cmp(b.Total)
		case "number":
			return strings.Compare(a.Number, b.Number)
		case "due_date":
			return compareDue(a.DueDate, b.DueDate)
		default:
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return int(a.ID) - int(b.ID)
		}
	})
	return invoices, nil
}

func partyName(p *models.Party) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func compareDue(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

func Get(ctx context.Context, userID uint, typ models.InvoiceType, id uint) (*models.Invoice, error) {
	return Find(database.DB.WithContext(ctx).Preload("Party").Preload("Items"), userID, typ, id)
}

// Find loads a live invoice of the given type owned by userID.
func Find(db *gorm.DB, userID uint, typ models.InvoiceType, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := db.Where("id = ? AND user_id = ? AND type = ?", id, userID, typ).First(&inv).Error; err != nil {
		return nil, apperr.FromDB("invoice.Find", strings.ToLower(label(typ)), err)
	}
	return &inv, nil
}

func Create(ctx context.Context, userID uint, typ models.InvoiceType, in Input) (*models.Invoice, error) {
	const op = "invoice.Create"
	if !typ.Valid() {
		return nil, apperr.Invalid(op, "type", "unknown invoice type")
	}
	if in.TaxRate == nil {
		rate := company.DefaultTaxRate(ctx, userID)
		in.TaxRate = &rate
	}

	inv := models.Invoice{UserID: userID, Type: typ}
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx, op, &inv, in); err != nil {
			return err
		}
		if inv.Status == models.InvoiceStatusCancelled {
			return apperr.Invalid(op, "status", "a new invoice cannot be cancelled")
		}
		if err := tx.Omit("Party").Create(&inv).Error; err != nil {
			return apperr.FromDB(op, "invoice", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityInvoice,
			EntityID:    inv.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", label(typ), inv.Number),
			After:       inv,
		})
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, userID, typ, inv.ID)
}

// Update replaces the header and lines. Cancelled invoices are final; an
// invoice with payments cannot go back to draft, be cancelled or drop
// below the amount already paid.
func Update(ctx context.Context, userID uint, typ models.InvoiceType, id uint, in Input) (*models.Invoice, error) {
	const op = "invoice.Update"

	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := Find(tx.Preload("Items"), userID, typ, id)
		if err != nil {
			return err
		}
		if inv.Status == models.InvoiceStatusCancelled {
			return apperr.Conflict(op, "a cancelled invoice cannot be changed")
		}
		if n, err := liveReturns(tx, inv.ID); err != nil {
			return err
		} else if n > 0 {
			return apperr.Conflict(op, "an invoice with returns cannot be changed")
		}
		before := *inv
		before.Items = append([]models.InvoiceItem(nil), inv.Items...)

		if in.TaxRate == nil {
			in.TaxRate = &inv.TaxRate
		}
		if err := apply(tx, op, inv, in); err != nil {
			return err
		}
		if inv.PartyID != before.PartyID {
			allocs, err := allocations(tx, inv.ID)
			if err != nil {
				return err
			}
			if len(allocs) > 0 {
				return apperr.Conflict(op, "the party of an invoice with payments cannot be changed")
			}
		}
		if inv.AmountPaid.IsPositive() {
			switch {
			case inv.Status == models.InvoiceStatusDraft:
				return apperr.Conflict(op, "an invoice with payments cannot become a draft")
			case inv.Status == models.InvoiceStatusCancelled:
				return apperr.Conflict(op, "an invoice with payments cannot be cancelled")
			case inv.Total.LessThan(inv.AmountPaid):
				return apperr.Invalid(op, "items", "total cannot be below the amount already paid")
			}
		}
		if err := tx.Omit("Party", "Items").Save(inv).Error; err != nil {
			return apperr.FromDB(op, "invoice", err)
		}
		if err := inv.ReplaceItems(tx); err != nil {
			return err
		}
		if err := CheckAllocations(tx, op, userID, []uint{inv.ID}); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityInvoice,
			EntityID:    inv.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", label(typ), inv.Number),
			Before:      before,
			After:       inv,
		})
	})
	if err != nil {
		return nil, err
	}
	return Get(ctx, userID, typ, id)
}

// Delete soft deletes an invoice that no live payment or return references.
func Delete(ctx context.Context, userID uint, typ models.InvoiceType, id uint) error {
	const op = "invoice.Delete"

	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := Find(tx.Preload("Items"), userID, typ, id)
		if err != nil {
			return err
		}

		allocs, err := allocations(tx, id)
		if err != nil {
			return err
		}
		if len(allocs) > 0 {
			return apperr.Conflict(op, "the invoice has payments and cannot be deleted")
		}
		returns, err := liveReturns(tx, id)
		if err != nil {
			return err
		}
		if returns > 0 {
			return apperr.Conflict(op, "the invoice has returns and cannot be deleted")
		}

		if err := tx.Delete(inv).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityInvoice,
			EntityID:    inv.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", label(typ), inv.Number),
			Before:      inv,
		})
	})
}

// apply validates in and copies it onto inv, recomputing every total.
func apply(tx *gorm.DB, op string, inv *models.Invoice, in Input) error {
	if in.PartyID == 0 {
		return apperr.Invalid(op, "party_id", "party is required")
	}
	if _, err := party.Find(tx, inv.UserID, inv.Type.PartyKind(), in.PartyID); err != nil {
		return apperr.Invalid(op, "party_id", fmt.Sprintf("%s not found", inv.Type.PartyKind()))
	}
	date, err := dates.Parse(in.Date)
	if err != nil {
		return apperr.Invalid(op, "date", err.Error())
	}
	due, err := dates.ParseOptional(in.DueDate)
	if err != nil {
		return apperr.Invalid(op, "due_date", err.Error())
	}
	if due != nil && due.Before(date) {
		return apperr.Invalid(op, "due_date", "due date cannot be before the invoice date")
	}
	if !money.ValidRate(*in.TaxRate) {
		return apperr.Invalid(op, "tax_rate", "tax rate must be between 0 and 100")
	}
	if len(in.Items) == 0 {
		return apperr.Invalid(op, "items", "at least one item is required")
	}

	switch in.Status {
	case "", models.InvoiceStatusUnpaid:
		in.Status = models.InvoiceStatusUnpaid
	case models.InvoiceStatusDraft, models.InvoiceStatusCancelled:
	case models.InvoiceStatusPaid, models.InvoiceStatusPartiallyPaid, models.InvoiceStatusOverdue:
		return apperr.Invalid(op, "status", "payment statuses are derived from payments")
	default:
		return apperr.Invalid(op, "status", "unknown invoice status")
	}

	lines := make([]money.Line, len(in.Items))
	items := make([]models.InvoiceItem, len(in.Items))
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		desc := strings.TrimSpace(it.Description)
		if it.ProductID != nil {
			var p models.Product
			if err := tx.Where("id = ? AND user_id = ?", *it.ProductID, inv.UserID).First(&p).Error; err != nil {
				return apperr.Invalid(op, field+".product_id", "product not found")
			}
			if desc == "" {
				desc = p.Name
			}
		}
		if desc == "" {
			return apperr.Invalid(op, field+".description", "description is required")
		}
		if !it.Quantity.IsPositive() {
			return apperr.Invalid(op, field+".quantity", "quantity must be positive")
		}
		if it.UnitPrice.IsNegative() {
			return apperr.Invalid(op, field+".unit_price", "unit price cannot be negative")
		}
		lines[i] = money.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice}
		items[i] = models.InvoiceItem{ProductID: it.ProductID, Description: desc, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	totals := money.Compute(lines, *in.TaxRate)
	for i := range items {
		items[i].LineTotal = totals.LineTotals[i]
	}

	number := strings.TrimSpace(in.Number)
	s := series(inv.Type)
	if number == "" && inv.Number != "" {
		number = inv.Number
	}
	if number == "" {
		if number, err = numbering.Next(tx, inv.UserID, s); err != nil {
			return err
		}
	} else if taken, err := numbering.Taken(tx, inv.UserID, s, number, inv.ID); err != nil {
		return err
	} else if taken {
		return apperr.Invalid(op, "number", fmt.Sprintf("number %s is already used", number))
	}

	inv.Number = number
	inv.PartyID = in.PartyID
	inv.Party = nil
	inv.Date = date
	inv.DueDate = due
	inv.TaxRate = *in.TaxRate
	inv.Notes = strings.TrimSpace(in.Notes)
	inv.Items = items
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.Total = totals.Total
	inv.Status = in.Status
	inv.Status = inv.DeriveStatus(dates.Today())
	return nil
}

func liveReturns(tx *gorm.DB, invoiceID uint) (int64, error) {
	var n int64
	err := tx.Model(&models.Return{}).
		Where("invoice_id = ? AND status <> ?", invoiceID, models.ReturnStatusRejected).
		Count(&n).Error
	return n, err
}

type allocation struct {
	PaymentID uint
	PartyID   uint
	Amount    decimal.Decimal
}

// allocations lists what live, non-cancelled payments allocate to an invoice.
func allocations(tx *gorm.DB, invoiceID uint) ([]allocation, error) {
	var rows []allocation
	err := tx.Model(&models.PaymentItem{}).
		Select("payments.id AS payment_id, payments.party_id, payment_items.amount").
		Joins("JOIN payments ON payments.id = payment_items.payment_id").
		Where("payment_items.invoice_id = ? AND payments.deleted_at IS NULL AND payments.status <> ?",
			invoiceID, models.PaymentStatusCancelled).
		Scan(&rows).Error
	return rows, err
}

// CheckAllocations returns a Conflict when live payments allocate to one of
// the invoices while it is deleted, not issued or owned by another party, or
// when they allocate more than its total.
func CheckAllocations(tx *gorm.DB, op string, userID uint, invoiceIDs []uint) error {
	if len(invoiceIDs) == 0 {
		return nil
	}
	var invoices []models.Invoice
	if err := tx.Unscoped().Where("id IN ? AND user_id = ?", invoiceIDs, userID).Find(&invoices).Error; err != nil {
		return err
	}
	for i := range invoices {
		inv := &invoices[i]
		allocs, err := allocations(tx, inv.ID)
		if err != nil {
			return err
		}
		if len(allocs) == 0 {
			continue
		}
		switch {
		case inv.DeletedAt.Valid:
			return apperr.Conflict(op, fmt.Sprintf("invoice %s has payments and cannot be removed", inv.Number))
		case !inv.IsIssued():
			return apperr.Conflict(op, fmt.Sprintf("invoice %s has payments and cannot be %s", inv.Number, inv.Status))
		}
		total := decimal.Zero
		for _, a := range allocs {
			if a.PartyID != inv.PartyID {
				return apperr.Conflict(op, fmt.Sprintf("invoice %s has payments from another party", inv.Number))
			}
			total = total.Add(a.Amount)
		}
		if total.GreaterThan(inv.Total) {
			return apperr.Conflict(op, fmt.Sprintf("payments of %s would exceed the %s total of invoice %s",
				total.StringFixed(2), inv.Total.StringFixed(2), inv.Number))
		}
	}
	return nil
}

// SweepOverdue marks unpaid invoices past their due date as overdue.
func SweepOverdue(ctx context.Context, userID uint) error {
	return database.DB.WithContext(ctx).Model(&models.Invoice{}).
		Where("user_id = ? AND status = ? AND due_date IS NOT NULL AND due_date < ?",
			userID, models.InvoiceStatusUnpaid, dates.Today()).
		Update("status", models.InvoiceStatusOverdue).Error
}

type paidRow struct {
	InvoiceID uint
	Amount    decimal.Decimal
}

// RefreshStatuses recomputes amount_paid and status of the given invoices
// from their completed payments.
func RefreshStatuses(tx *gorm.DB, userID uint, invoiceIDs []uint) error {
	if len(invoiceIDs) == 0 {
		return nil
	}

	var rows []paidRow
	if err := tx.Model(&models.PaymentItem{}).
		Select("payment_items.invoice_id, payment_items.amount").
		Joins("JOIN payments ON payments.id = payment_items.payment_id").
		Where("payment_items.invoice_id IN ? AND payments.user_id = ? AND payments.status = ? AND payments.deleted_at IS NULL",
			invoiceIDs, userID, models.PaymentStatusCompleted).
		Scan(&rows).Error; err != nil {
		return err
	}
	paid := map[uint]decimal.Decimal{}
	for _, r := range rows {
		paid[r.InvoiceID] = paid[r.InvoiceID].Add(r.Amount)
	}

	var invoices []models.Invoice
	if err := tx.Unscoped().Where("id IN ? AND user_id = ?", invoiceIDs, userID).Find(&invoices).Error; err != nil {
		return err
	}
	today := dates.Today()
	for i := range invoices {
		inv := &invoices[i]
		inv.AmountPaid = paid[inv.ID]
		status := inv.DeriveStatus(today)
		if err := tx.Unscoped().Model(&models.Invoice{}).Where("id = ?", inv.ID).Updates(map[string]any{
			"amount_paid": inv.AmountPaid,
			"status":      status,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReturnedQuantities returns the already returned quantity per invoice line,
// excluding rejected returns and the return exceptReturnID.
func ReturnedQuantities(tx *gorm.DB, invoiceID, exceptReturnID uint) (map[uint]decimal.Decimal, error) {
	var rows []struct {
		InvoiceItemID uint
		Quantity      decimal.Decimal
	}
	if err := tx.Model(&models.ReturnItem{}).
		Select("return_items.invoice_item_id, return_items.quantity").
		Joins("JOIN returns ON returns.id = return_items.return_id").
		Where("returns.invoice_id = ? AND returns.id <> ? AND returns.status <> ? AND returns.deleted_at IS NULL",
			invoiceID, exceptReturnID, models.ReturnStatusRejected).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[uint]decimal.Decimal{}
	for _, r := range rows {
		out[r.InvoiceItemID] = out[r.InvoiceItemID].Add(r.Quantity)
	}
	return out, nil
}

// AfterUndo keeps undo from orphaning payments or returns and re-derives
// the invoice status once its snapshot is back. Restoring an older version
// replaces the current lines, so returns recorded against them block it.
func AfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "invoice.Undo"

	var inv models.Invoice
	if err := tx.Unscoped().Where("id = ? AND user_id = ?", log.EntityID, log.UserID).First(&inv).Error; err != nil {
		return apperr.FromDB(op, "invoice", err)
	}
	if inv.DeletedAt.Valid || log.Action == models.AuditActionUpdate {
		n, err := liveReturns(tx, inv.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict(op, "the invoice has returns recorded against its current lines")
		}
	}
	if err := CheckAllocations(tx, op, log.UserID, []uint{inv.ID}); err != nil {
		return err
	}
	if inv.DeletedAt.Valid {
		return nil
	}
	if err := party.RequireLive(tx, op, log.UserID, inv.Type.PartyKind(), inv.PartyID); err != nil {
		return err
	}
	return RefreshStatuses(tx, log.UserID, []uint{inv.ID})
}
