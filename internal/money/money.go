package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Round2 rounds half away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is round2(quantity x unit price).
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(unitPrice))
}

// Tax is round2(subtotal x ratePercent / 100).
func Tax(subtotal, ratePercent decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Mul(ratePercent).Div(hundred))
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Line is the priced part of a document line.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Totals of a header/line document.
type Totals struct {
	LineTotals []decimal.Decimal
	Subtotal   decimal.Decimal
	TaxAmount  decimal.Decimal
	Total      decimal.Decimal
}

// Compute applies the document rules: every line total is rounded, the
// subtotal is their sum, tax is taken on the subtotal and total is
// subtotal plus tax.
func Compute(lines []Line, taxRatePercent decimal.Decimal) Totals {
	t := Totals{LineTotals: make([]decimal.Decimal, len(lines))}
	for i, l := range lines {
		t.LineTotals[i] = LineTotal(l.Quantity, l.UnitPrice)
	}
	t.Subtotal = Sum(t.LineTotals...)
	t.TaxAmount = Tax(t.Subtotal, taxRatePercent)
	t.Total = t.Subtotal.Add(t.TaxAmount)
	return t
}

// ValidRate reports whether a tax rate percent is within 0..100.
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}
