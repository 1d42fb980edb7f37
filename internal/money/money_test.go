package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineTotalRounds(t *testing.T) {
	tests := []struct {
		qty, price, want string
	}{
		{"3", "19.99", "59.97"},
		{"1.5", "3.333", "5"},
		{"0.333", "1.5", "0.5"},
		{"2", "0.005", "0.01"},
	}
	for _, tt := range tests {
		if got := LineTotal(d(tt.qty), d(tt.price)); !got.Equal(d(tt.want)) {
			t.Errorf("LineTotal(%s, %s) = %s, want %s", tt.qty, tt.price, got, tt.want)
		}
	}
}

func TestComputeTotals(t *testing.T) {
	lines := []Line{
		{Quantity: d("2"), UnitPrice: d("10.00")},
		{Quantity: d("1"), UnitPrice: d("5.55")},
	}
	got := Compute(lines, d("18"))

	if !got.Subtotal.Equal(d("25.55")) {
		t.Errorf("subtotal = %s", got.Subtotal)
	}
	// 25.55 * 0.18 = 4.599
	if !got.TaxAmount.Equal(d("4.6")) {
		t.Errorf("tax = %s", got.TaxAmount)
	}
	if !got.Total.Equal(got.Subtotal.Add(got.TaxAmount)) {
		t.Errorf("total %s != subtotal + tax", got.Total)
	}
	if !Sum(got.LineTotals...).Equal(got.Subtotal) {
		t.Error("subtotal is not the sum of line totals")
	}
}

func TestComputeEmpty(t *testing.T) {
	got := Compute(nil, d("20"))
	if !got.Total.IsZero() || len(got.LineTotals) != 0 {
		t.Errorf("empty document totals = %+v", got)
	}
}

func TestValidRate(t *testing.T) {
	for s, want := range map[string]bool{"0": true, "18": true, "100": true, "-1": false, "100.01": false} {
		if got := ValidRate(d(s)); got != want {
			t.Errorf("ValidRate(%s) = %v", s, got)
		}
	}
}
