package payment

import (
	"context"
	"encoding/json"
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
	"defter-backend/internal/numbering"
	"defter-backend/internal/party"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var SortKeys = []string{"date", "amount", "number"}

type ItemInput struct {
	InvoiceID uint            `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type Input struct {
	Number    string               `json:"number"`
	PartyID   uint                 `json:"party_id"`
	Date      string               `json:"date"`
	Amount    *decimal.Decimal     `json:"amount"` // optional, must equal the sum of items
	Method    models.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
	Notes     string               `json:"notes"`
	Status    models.PaymentStatus `json:"status"` // defaults to completed
	Items     []ItemInput          `json:"items"`
}

func series(dir models.PaymentDirection) numbering.Series {
	prefix := "PIN"
	if dir == models.PaymentDirectionOut {
		prefix = "POUT"
	}
	return numbering.Series{Model: &models.Payment{}, TypeColumn: "direction", TypeValue: string(dir), Prefix: prefix}
}

func label(dir models.PaymentDirection) string {
	if dir == models.PaymentDirectionOut {
		return "Payment out"
	}
	return "Payment in"
}

func List(ctx context.Context, userID uint, dir models.PaymentDirection, q listing.Query) ([]models.Payment, error) {
	const op = "payment.List"

	db := database.DB.WithContext(ctx).Preload("Party").Preload("Items").
		Where("user_id = ? AND direction = ?", userID, dir)
	if q.Status != "" {
		if !models.PaymentStatus(q.Status).Valid() {
			return nil, apperr.Invalid(op, "status", "unknown payment status")
		}
		db = db.Where("status = ?", q.Status)
	}
	if q.PartyID != 0 {
		db = db.Where("party_id = ?", q.PartyID)
	}

	var payments []models.Payment
	if err := q.DateRange(db, "date").Find(&payments).Error; err != nil {
		return nil, err
	}

	payments = listing.Filter(payments, q.Search, func(p models.Payment) []string {
		name := ""
		if p.Party != nil {
			name = p.Party.Name
		}
		return []string{p.Number, name, p.Reference}
	})
	listing.Sort(payments, q.Desc, func(a, b models.Payment) int {
		switch q.Sort {
		case "amount":
			return a.Amount.Cmp(b.Amount)
		case "number":
			return strings.Compare(a.Number, b.Number)
		default:
			if c := a.Date.Compare(b.Date); c != 0 {
				return c
			}
			return int(a.ID) - int(b.ID)
		}
	})
	return payments, nil
}

func Get(ctx context.Context, userID uint, dir models.PaymentDirection, id uint) (*models.Payment, error) {
	return find(database.DB.WithContext(ctx).Preload("Party").Preload("Items"), userID, dir, id)
}

func find(db *gorm.DB, userID uint, dir models.PaymentDirection, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := db.Where("id = ? AND user_id = ? AND direction = ?", id, userID, dir).First(&p).Error; err != nil {
		return nil, apperr.FromDB("payment.Find", strings.ToLower(label(dir)), err)
	}
	return &p, nil
}

// Create records a payment. With an idempotency key, a repeated request
// returns the payment created first and created is false.
func Create(ctx context.Context, userID uint, dir models.PaymentDirection, in Input, idempotencyKey string) (p *models.Payment, created bool, err error) {
	const op = "payment.Create"
	if !dir.Valid() {
		return nil, false, apperr.Invalid(op, "direction", "unknown payment direction")
	}

	var key *string
	if idempotencyKey != "" {
		if _, err := uuid.Parse(idempotencyKey); err != nil {
			return nil, false, apperr.Invalid(op, "Idempotency-Key", "idempotency key must be a UUID")
		}
		key = &idempotencyKey
		if existing, err := byKey(ctx, userID, dir, idempotencyKey); err != nil || existing != nil {
			return existing, false, err
		}
	}

	pay := models.Payment{UserID: userID, Direction: dir, IdempotencyKey: key}
	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx, op, &pay, in); err != nil {
			return err
		}
		if pay.Status == models.PaymentStatusCancelled {
			return apperr.Invalid(op, "status", "a new payment cannot be cancelled")
		}
		if err := tx.Omit("Party").Create(&pay).Error; err != nil {
			return err
		}
		if err := invoice.RefreshStatuses(tx, userID, pay.InvoiceIDs()); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityPayment,
			EntityID:    pay.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("%s created: %s", label(dir), pay.Number),
			After:       pay,
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && key != nil {
		// a concurrent request with the same key won the race
		existing, lookupErr := byKey(ctx, userID, dir, *key)
		if lookupErr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, apperr.FromDB(op, "payment", err)
	}
	p, err = Get(ctx, userID, dir, pay.ID)
	return p, err == nil, err
}

func byKey(ctx context.Context, userID uint, dir models.PaymentDirection, key string) (*models.Payment, error) {
	const op = "payment.Create"

	var p models.Payment
	res := database.DB.WithContext(ctx).Unscoped().
		Where("user_id = ? AND idempotency_key = ?", userID, key).Limit(1).Find(&p)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	if p.Direction != dir {
		return nil, apperr.Conflict(op, "idempotency key was used for another payment direction")
	}
	if p.DeletedAt.Valid {
		return nil, apperr.Conflict(op, "idempotency key belongs to a deleted payment")
	}
	return Get(ctx, userID, dir, p.ID)
}

// Update replaces the payment and its allocations. Cancelled payments are
// final. completed reports a transition into the completed status.
func Update(ctx context.Context, userID uint, dir models.PaymentDirection, id uint, in Input) (p *models.Payment, completed bool, err error) {
	const op = "payment.Update"

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pay, err := find(tx.Preload("Items"), userID, dir, id)
		if err != nil {
			return err
		}
		if pay.Status == models.PaymentStatusCancelled {
			return apperr.Conflict(op, "a cancelled payment cannot be changed")
		}
		before := *pay
		before.Items = append([]models.PaymentItem(nil), pay.Items...)

		if err := apply(tx, op, pay, in); err != nil {
			return err
		}
		completed = before.Status != models.PaymentStatusCompleted && pay.Status == models.PaymentStatusCompleted

		if err := tx.Omit("Party", "Items").Save(pay).Error; err != nil {
			return err
		}
		if err := pay.ReplaceItems(tx); err != nil {
			return err
		}
		affected := append(before.InvoiceIDs(), pay.InvoiceIDs()...)
		if err := invoice.RefreshStatuses(tx, userID, affected); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityPayment,
			EntityID:    pay.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("%s updated: %s", label(dir), pay.Number),
			Before:      before,
			After:       pay,
		})
	})
	if err != nil {
		return nil, false, apperr.FromDB(op, "payment", err)
	}
	p, err = Get(ctx, userID, dir, id)
	return p, completed, err
}

func Delete(ctx context.Context, userID uint, dir models.PaymentDirection, id uint) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pay, err := find(tx.Preload("Items"), userID, dir, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(pay).Error; err != nil {
			return err
		}
		if err := invoice.RefreshStatuses(tx, userID, pay.InvoiceIDs()); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityPayment,
			EntityID:    pay.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("%s deleted: %s", label(dir), pay.Number),
			Before:      pay,
		})
	})
}

// apply validates in against the referenced invoices and copies it onto p.
// The header amount is always the sum of the items.
func apply(tx *gorm.DB, op string, p *models.Payment, in Input) error {
	if in.PartyID == 0 {
		return apperr.Invalid(op, "party_id", "party is required")
	}
	kind := p.Direction.InvoiceType().PartyKind()
	if _, err := party.Find(tx, p.UserID, kind, in.PartyID); err != nil {
		return apperr.Invalid(op, "party_id", fmt.Sprintf("%s not found", kind))
	}
	date, err := dates.Parse(in.Date)
	if err != nil {
		return apperr.Invalid(op, "date", err.Error())
	}
	if in.Method == "" {
		in.Method = models.PaymentMethodCash
	}
	if !in.Method.Valid() {
		return apperr.Invalid(op, "method", "unknown payment method")
	}
	if in.Status == "" {
		in.Status = models.PaymentStatusCompleted
	}
	if !in.Status.Valid() {
		return apperr.Invalid(op, "status", "unknown payment status")
	}
	if len(in.Items) == 0 {
		return apperr.Invalid(op, "items", "at least one invoice is required")
	}

	allocated, err := allocatedElsewhere(tx, p.ID, in.Items)
	if err != nil {
		return err
	}

	items := make([]models.PaymentItem, 0, len(in.Items))
	seen := map[uint]bool{}
	total := decimal.Zero
	for i, it := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if seen[it.InvoiceID] {
			return apperr.Invalid(op, field+".invoice_id", "an invoice can appear only once")
		}
		seen[it.InvoiceID] = true

		inv, err := invoice.Find(tx, p.UserID, p.Direction.InvoiceType(), it.InvoiceID)
		if err != nil {
			return apperr.Invalid(op, field+".invoice_id", "invoice not found")
		}
		if inv.PartyID != in.PartyID {
			return apperr.Invalid(op, field+".invoice_id", fmt.Sprintf("invoice %s belongs to another party", inv.Number))
		}
		if !inv.IsIssued() {
			return apperr.Invalid(op, field+".invoice_id", fmt.Sprintf("invoice %s is %s", inv.Number, inv.Status))
		}
		if !it.Amount.IsPositive() {
			return apperr.Invalid(op, field+".amount", "amount must be positive")
		}
		open := inv.Total.Sub(allocated[inv.ID])
		if it.Amount.GreaterThan(open) {
			return apperr.Invalid(op, field+".amount", fmt.Sprintf("amount exceeds the %s outstanding on %s", open.StringFixed(2), inv.Number))
		}
		items = append(items, models.PaymentItem{InvoiceID: inv.ID, Amount: it.Amount})
		total = total.Add(it.Amount)
	}
	if in.Amount != nil && !in.Amount.Equal(total) {
		return apperr.Invalid(op, "amount", fmt.Sprintf("amount %s does not match the items total %s", in.Amount.StringFixed(2), total.StringFixed(2)))
	}

	number := strings.TrimSpace(in.Number)
	s := series(p.Direction)
	if number == "" {
		number = p.Number
	}
	if number == "" {
		if number, err = numbering.Next(tx, p.UserID, s); err != nil {
			return err
		}
	} else if taken, err := numbering.Taken(tx, p.UserID, s, number, p.ID); err != nil {
		return err
	} else if taken {
		return apperr.Invalid(op, "number", fmt.Sprintf("number %s is already used", number))
	}

	p.Number = number
	p.PartyID = in.PartyID
	p.Party = nil
	p.Date = date
	p.Method = in.Method
	p.Reference = strings.TrimSpace(in.Reference)
	p.Notes = strings.TrimSpace(in.Notes)
	p.Status = in.Status
	p.Items = items
	p.Amount = total
	return nil
}

// allocatedElsewhere sums what live, non-cancelled payments other than
// paymentID already allocate to the invoices in items.
func allocatedElsewhere(tx *gorm.DB, paymentID uint, items []ItemInput) (map[uint]decimal.Decimal, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.InvoiceID)
	}
	var rows []struct {
		InvoiceID uint
		Amount    decimal.Decimal
	}
	if err := tx.Model(&models.PaymentItem{}).
		Select("payment_items.invoice_id, payment_items.amount").
		Joins("JOIN payments ON payments.id = payment_items.payment_id").
		Where("payment_items.invoice_id IN ? AND payments.id <> ? AND payments.status <> ? AND payments.deleted_at IS NULL",
			ids, paymentID, models.PaymentStatusCancelled).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[uint]decimal.Decimal{}
	for _, r := range rows {
		out[r.InvoiceID] = out[r.InvoiceID].Add(r.Amount)
	}
	return out, nil
}

// AfterUndo re-derives the status of every invoice the payment touched
// before or after the reverted change. Restored allocations must still fit
// their invoices.
func AfterUndo(tx *gorm.DB, log *models.AuditLog) error {
	const op = "payment.Undo"

	var ids []uint
	for _, snapshot := range []string{log.BeforeData, log.AfterData} {
		var p models.Payment
		if snapshot == "" || snapshot == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
			return fmt.Errorf("decode payment snapshot: %w", err)
		}
		ids = append(ids, p.InvoiceIDs()...)
	}
	if err := invoice.CheckAllocations(tx, op, log.UserID, ids); err != nil {
		return err
	}

	var p models.Payment
	if err := tx.Where("id = ? AND user_id = ?", log.EntityID, log.UserID).Limit(1).Find(&p).Error; err != nil {
		return err
	}
	if p.ID != 0 {
		if err := party.RequireLive(tx, op, log.UserID, p.Direction.InvoiceType().PartyKind(), p.PartyID); err != nil {
			return err
		}
	}
	return invoice.RefreshStatuses(tx, log.UserID, ids)
}
