package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/models"
	"defter-backend/internal/product"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type Dataset string

const (
	DatasetSummary  Dataset = "summary"
	DatasetInvoices Dataset = "invoices"
	DatasetPayments Dataset = "payments"
	DatasetCash     Dataset = "cash"
	DatasetProducts Dataset = "products"
)

func (d Dataset) Valid() bool {
	switch d {
	case DatasetSummary, DatasetInvoices, DatasetPayments, DatasetCash, DatasetProducts:
		return true
	}
	return false
}

// Filename is the suggested download name of an export.
func Filename(d Dataset, from, to time.Time) string {
	if d == DatasetProducts {
		return "products.xlsx"
	}
	return fmt.Sprintf("%s_%s_%s.xlsx", d, dates.Format(from), dates.Format(to))
}

// ExportXLSX writes one dataset for [from, to] as a workbook to w. Products
// ignore the range.
func ExportXLSX(ctx context.Context, userID uint, d Dataset, from, to time.Time, w io.Writer) error {
	const op = "report.Export"
	if !d.Valid() {
		return apperr.Invalid(op, "dataset", "dataset must be summary, invoices, payments, cash or products")
	}
	if d == DatasetProducts {
		return product.ExportXLSX(ctx, userID, w)
	}
	from, to = dates.Day(from), dates.Day(to)
	if to.Before(from) {
		return apperr.Invalid(op, "to", "to cannot be before from")
	}

	var (
		sheet  string
		header []any
		rows   [][]any
		err    error
	)
	db := database.DB.WithContext(ctx)
	switch d {
	case DatasetSummary:
		sheet = "Summary"
		header = []any{"Period start", "Sales", "Purchases", "Sales returns", "Purchase returns", "Income", "Expenses", "Net profit"}
		rows, err = summaryRows(ctx, userID, from, to)
	case DatasetInvoices:
		sheet = "Invoices"
		header = []any{"Number", "Type", "Date", "Due date", "Party", "Status", "Subtotal", "Tax", "Total", "Paid"}
		rows, err = invoiceRows(db, userID, from, to)
	case DatasetPayments:
		sheet = "Payments"
		header = []any{"Number", "Direction", "Date", "Party", "Method", "Status", "Amount", "Reference"}
		rows, err = paymentRows(db, userID, from, to)
	case DatasetCash:
		sheet = "Cash"
		header = []any{"Date", "Kind", "Category", "Amount", "Payment method", "Reference", "Description"}
		rows, err = cashRows(db, userID, from, to)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName(f.GetSheetName(0), sheet)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func summaryRows(ctx context.Context, userID uint, from, to time.Time) ([][]any, error) {
	s, err := BuildSummary(ctx, userID, from, to, Monthly)
	if err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(s.Breakdown)+1)
	line := func(label string, t Totals) []any {
		return []any{label, t.Sales.StringFixed(2), t.Purchases.StringFixed(2), t.SalesReturns.StringFixed(2),
			t.PurchaseReturns.StringFixed(2), t.Income.StringFixed(2), t.Expenses.StringFixed(2), t.NetProfit.StringFixed(2)}
	}
	for _, b := range s.Breakdown {
		out = append(out, line(b.Start, b.Totals))
	}
	return append(out, line("Total", s.Totals)), nil
}

func invoiceRows(db *gorm.DB, userID uint, from, to time.Time) ([][]any, error) {
	var invoices []models.Invoice
	if err := between(db.Preload("Party"), &from, to).
		Where("user_id = ?", userID).
		Order("date asc, id asc").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(invoices))
	for _, inv := range invoices {
		due := ""
		if inv.DueDate != nil {
			due = dates.Format(*inv.DueDate)
		}
		out = append(out, []any{
			inv.Number, string(inv.Type), dates.Format(inv.Date), due, partyName(inv.Party), string(inv.Status),
			inv.Subtotal.StringFixed(2), inv.TaxAmount.StringFixed(2), inv.Total.StringFixed(2), inv.AmountPaid.StringFixed(2),
		})
	}
	return out, nil
}

func paymentRows(db *gorm.DB, userID uint, from, to time.Time) ([][]any, error) {
	var payments []models.Payment
	if err := between(db.Preload("Party"), &from, to).
		Where("user_id = ?", userID).
		Order("date asc, id asc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(payments))
	for _, p := range payments {
		out = append(out, []any{
			p.Number, string(p.Direction), dates.Format(p.Date), partyName(p.Party), string(p.Method),
			string(p.Status), p.Amount.StringFixed(2), p.Reference,
		})
	}
	return out, nil
}

func cashRows(db *gorm.DB, userID uint, from, to time.Time) ([][]any, error) {
	var entries []models.CashEntry
	if err := between(db.Preload("Category"), &from, to).
		Where("user_id = ?", userID).
		Order("date asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	out := make([][]any, 0, len(entries))
	for _, e := range entries {
		category := ""
		if e.Category != nil {
			category = e.Category.Name
		}
		out = append(out, []any{
			dates.Format(e.Date), string(e.Kind), category, e.Amount.StringFixed(2),
			string(e.PaymentMethod), e.Reference, e.Description,
		})
	}
	return out, nil
}

func partyName(p *models.Party) string {
	if p == nil {
		return ""
	}
	return p.Name
}
