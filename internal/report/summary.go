package report

import (
	"context"
	"fmt"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

func (p Period) Valid() bool { return p == Daily || p == Weekly || p == Monthly }

// bucket returns the first day of the period containing t.
func (p Period) bucket(t time.Time) time.Time {
	switch p {
	case Weekly:
		return dates.StartOfWeek(t)
	case Monthly:
		return dates.StartOfMonth(t)
	default:
		return dates.Day(t)
	}
}

func (p Period) next(t time.Time) time.Time {
	switch p {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// maxBuckets bounds a breakdown so a wide daily range cannot explode.
const maxBuckets = 400

// Totals of the documents and cash entries dated inside a range. Sales and
// purchases are net of tax; returns count once completed.
type Totals struct {
	Sales            decimal.Decimal `json:"sales"`
	Purchases        decimal.Decimal `json:"purchases"`
	SalesReturns     decimal.Decimal `json:"sales_returns"`
	PurchaseReturns  decimal.Decimal `json:"purchase_returns"`
	Income           decimal.Decimal `json:"income"`
	Expenses         decimal.Decimal `json:"expenses"`
	PaymentsReceived decimal.Decimal `json:"payments_received"`
	PaymentsMade     decimal.Decimal `json:"payments_made"`
	TaxCollected     decimal.Decimal `json:"tax_collected"`
	TaxPaid          decimal.Decimal `json:"tax_paid"`
	NetProfit        decimal.Decimal `json:"net_profit"`
}

type Bucket struct {
	Start string `json:"start"`
	Totals
}

type Summary struct {
	Period      Period          `json:"period"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Totals      Totals          `json:"totals"`
	Receivables decimal.Decimal `json:"receivables"` // unpaid issued sales invoices up to To
	Payables    decimal.Decimal `json:"payables"`
	Breakdown   []Bucket        `json:"breakdown"`
}

type movementKind int

const (
	sale movementKind = iota
	purchase
	salesReturn
	purchaseReturn
	income
	expense
	received
	made
)

type movement struct {
	date   time.Time
	kind   movementKind
	amount decimal.Decimal
	tax    decimal.Decimal
}

func (t *Totals) add(m movement) {
	switch m.kind {
	case sale:
		t.Sales = t.Sales.Add(m.amount)
		t.TaxCollected = t.TaxCollected.Add(m.tax)
	case purchase:
		t.Purchases = t.Purchases.Add(m.amount)
		t.TaxPaid = t.TaxPaid.Add(m.tax)
	case salesReturn:
		t.SalesReturns = t.SalesReturns.Add(m.amount)
		t.TaxCollected = t.TaxCollected.Sub(m.tax)
	case purchaseReturn:
		t.PurchaseReturns = t.PurchaseReturns.Add(m.amount)
		t.TaxPaid = t.TaxPaid.Sub(m.tax)
	case income:
		t.Income = t.Income.Add(m.amount)
	case expense:
		t.Expenses = t.Expenses.Add(m.amount)
	case received:
		t.PaymentsReceived = t.PaymentsReceived.Add(m.amount)
	case made:
		t.PaymentsMade = t.PaymentsMade.Add(m.amount)
	}
}

// finish derives the net profit:
// (sales - sales returns + income) - (purchases - purchase returns + expenses).
func (t *Totals) finish() {
	in := t.Sales.Sub(t.SalesReturns).Add(t.Income)
	out := t.Purchases.Sub(t.PurchaseReturns).Add(t.Expenses)
	t.NetProfit = in.Sub(out)
}

// between limits db to dates inside [from, to]; a nil from is open.
func between(db *gorm.DB, from *time.Time, to time.Time) *gorm.DB {
	if from != nil {
		db = db.Where("date >= ?", *from)
	}
	return db.Where("date < ?", to.AddDate(0, 0, 1))
}

type documentRow struct {
	Type      string
	Date      time.Time
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
}

type amountRow struct {
	Kind   string
	Date   time.Time
	Amount decimal.Decimal
}

// movements loads every dated money movement of the user in range.
func movements(db *gorm.DB, userID uint, from *time.Time, to time.Time) ([]movement, error) {
	var out []movement

	var invoices []documentRow
	if err := between(db.Model(&models.Invoice{}), from, to).
		Select("type, date, subtotal, tax_amount").
		Where("user_id = ? AND status NOT IN ?", userID, []models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusCancelled}).
		Scan(&invoices).Error; err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	for _, r := range invoices {
		kind := sale
		if r.Type == string(models.InvoiceTypePurchase) {
			kind = purchase
		}
		out = append(out, movement{date: r.Date, kind: kind, amount: r.Subtotal, tax: r.TaxAmount})
	}

	var returns []documentRow
	if err := between(db.Model(&models.Return{}), from, to).
		Select("type, date, subtotal, tax_amount").
		Where("user_id = ? AND status = ?", userID, models.ReturnStatusCompleted).
		Scan(&returns).Error; err != nil {
		return nil, fmt.Errorf("load returns: %w", err)
	}
	for _, r := range returns {
		kind := salesReturn
		if r.Type == string(models.ReturnTypePurchase) {
			kind = purchaseReturn
		}
		out = append(out, movement{date: r.Date, kind: kind, amount: r.Subtotal, tax: r.TaxAmount})
	}

	var cash []amountRow
	if err := between(db.Model(&models.CashEntry{}), from, to).
		Select("kind, date, amount").
		Where("user_id = ?", userID).
		Scan(&cash).Error; err != nil {
		return nil, fmt.Errorf("load cash entries: %w", err)
	}
	for _, r := range cash {
		kind := income
		if r.Kind == string(models.CashEntryExpense) {
			kind = expense
		}
		out = append(out, movement{date: r.Date, kind: kind, amount: r.Amount})
	}

	var payments []amountRow
	if err := between(db.Model(&models.Payment{}), from, to).
		Select("direction AS kind, date, amount").
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusCompleted).
		Scan(&payments).Error; err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	for _, r := range payments {
		kind := received
		if r.Kind == string(models.PaymentDirectionOut) {
			kind = made
		}
		out = append(out, movement{date: r.Date, kind: kind, amount: r.Amount})
	}
	return out, nil
}

// outstanding sums the unpaid part of issued invoices dated up to to.
func outstanding(db *gorm.DB, userID uint, typ models.InvoiceType, to time.Time) (decimal.Decimal, error) {
	var invoices []models.Invoice
	if err := between(db, nil, to).
		Select("total, amount_paid, status").
		Where("user_id = ? AND type = ? AND status NOT IN ?", userID, typ,
			[]models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusCancelled}).
		Find(&invoices).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for i := range invoices {
		sum = sum.Add(invoices[i].Outstanding())
	}
	return sum, nil
}

// BuildSummary aggregates [from, to] and breaks it down per period.
func BuildSummary(ctx context.Context, userID uint, from, to time.Time, period Period) (*Summary, error) {
	const op = "report.Summary"
	if period == "" {
		period = Daily
	}
	if !period.Valid() {
		return nil, apperr.Invalid(op, "period", "period must be daily, weekly or monthly")
	}
	from, to = dates.Day(from), dates.Day(to)
	if to.Before(from) {
		return nil, apperr.Invalid(op, "to", "to cannot be before from")
	}

	var starts []time.Time
	for b := period.bucket(from); !b.After(to); b = period.next(b) {
		starts = append(starts, b)
		if len(starts) > maxBuckets {
			return nil, apperr.Invalid(op, "period", fmt.Sprintf("the range has more than %d %s buckets", maxBuckets, period))
		}
	}

	db := database.DB.WithContext(ctx)
	moves, err := movements(db, userID, &from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Summary{Period: period, From: dates.Format(from), To: dates.Format(to), Breakdown: make([]Bucket, len(starts))}
	index := make(map[time.Time]int, len(starts))
	for i, b := range starts {
		index[b] = i
		s.Breakdown[i].Start = dates.Format(b)
	}
	for _, m := range moves {
		s.Totals.add(m)
		if i, ok := index[period.bucket(m.date)]; ok {
			s.Breakdown[i].add(m)
		}
	}
	s.Totals.finish()
	for i := range s.Breakdown {
		s.Breakdown[i].finish()
	}

	if s.Receivables, err = outstanding(db, userID, models.InvoiceTypeSales, to); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.Payables, err = outstanding(db, userID, models.InvoiceTypePurchase, to); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// earnings is the net profit of everything dated up to asOf.
func earnings(db *gorm.DB, userID uint, asOf time.Time) (decimal.Decimal, error) {
	moves, err := movements(db, userID, nil, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	var t Totals
	for _, m := range moves {
		t.add(m)
	}
	t.finish()
	return t.NetProfit, nil
}
