package report

import (
	"context"

	"defter-backend/internal/apperr"
	"defter-backend/internal/dates"

	"github.com/shopspring/decimal"
)

type ChartPoint struct {
	Label     string          `json:"label"` // first day of the bucket
	Sales     decimal.Decimal `json:"sales"`
	Purchases decimal.Decimal `json:"purchases"`
	Income    decimal.Decimal `json:"income"`
	Expense   decimal.Decimal `json:"expense"`
}

type Chart struct {
	Period      Period       `json:"period"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Points      []ChartPoint `json:"points"`
	GrandTotals ChartPoint   `json:"grand_totals"`
}

// DefaultCount is the number of buckets shown when none is asked for.
func DefaultCount(p Period) int {
	switch p {
	case Weekly:
		return 8
	case Monthly:
		return 12
	default:
		return 7
	}
}

// BuildChart returns the last count buckets of the period, ending today.
func BuildChart(ctx context.Context, userID uint, period Period, count int) (*Chart, error) {
	const op = "report.Chart"
	if period == "" {
		period = Daily
	}
	if !period.Valid() {
		return nil, apperr.Invalid(op, "period", "period must be daily, weekly or monthly")
	}
	if count == 0 {
		count = DefaultCount(period)
	}
	if count < 0 || count > maxBuckets {
		return nil, apperr.Invalid(op, "count", "count must be between 1 and 400")
	}

	today := dates.Today()
	start := period.bucket(today)
	for i := 1; i < count; i++ {
		switch period {
		case Weekly:
			start = start.AddDate(0, 0, -7)
		case Monthly:
			start = start.AddDate(0, -1, 0)
		default:
			start = start.AddDate(0, 0, -1)
		}
	}

	s, err := BuildSummary(ctx, userID, start, today, period)
	if err != nil {
		return nil, err
	}
	chart := &Chart{Period: period, From: s.From, To: s.To, Points: make([]ChartPoint, 0, len(s.Breakdown))}
	for _, b := range s.Breakdown {
		p := ChartPoint{
			Label:     b.Start,
			Sales:     b.Sales.Sub(b.SalesReturns),
			Purchases: b.Purchases.Sub(b.PurchaseReturns),
			Income:    b.Income,
			Expense:   b.Expenses,
		}
		chart.Points = append(chart.Points, p)
		chart.GrandTotals.Sales = chart.GrandTotals.Sales.Add(p.Sales)
		chart.GrandTotals.Purchases = chart.GrandTotals.Purchases.Add(p.Purchases)
		chart.GrandTotals.Income = chart.GrandTotals.Income.Add(p.Income)
		chart.GrandTotals.Expense = chart.GrandTotals.Expense.Add(p.Expense)
	}
	chart.GrandTotals.Label = "total"
	return chart, nil
}
