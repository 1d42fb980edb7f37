package report

import (
	"context"
	"fmt"
	"time"

	"defter-backend/internal/database"
	"defter-backend/internal/dates"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
)

type SheetLine struct {
	AccountGroupID uint                `json:"account_group_id,omitempty"` // zero for current earnings
	Name           string              `json:"name"`
	Code           string              `json:"code,omitempty"`
	Class          models.AccountClass `json:"class"`
	Debit          decimal.Decimal     `json:"debit"`
	Credit         decimal.Decimal     `json:"credit"`
	Balance        decimal.Decimal     `json:"balance"`
}

type SheetSection struct {
	Lines []SheetLine     `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

type BalanceSheet struct {
	AsOf        string       `json:"as_of"`
	Assets      SheetSection `json:"assets"`
	Liabilities SheetSection `json:"liabilities"`
	Equity      SheetSection `json:"equity"`
	Balanced    bool         `json:"balanced"`
}

const CurrentEarningsName = "Current earnings"

// naturalBalance is debit - credit for assets and credit - debit otherwise.
func naturalBalance(class models.AccountClass, debit, credit decimal.Decimal) decimal.Decimal {
	if class == models.AccountClassAsset {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

type sideRow struct {
	AccountGroupID uint
	Side           string
	Amount         decimal.Decimal
}

// BuildBalanceSheet sums ledger entries dated up to asOf per account group.
// With includeEarnings the net profit to date is added as an equity line.
func BuildBalanceSheet(ctx context.Context, userID uint, asOf time.Time, includeEarnings bool) (*BalanceSheet, error) {
	const op = "report.BalanceSheet"
	asOf = dates.Day(asOf)
	db := database.DB.WithContext(ctx)

	var groups []models.AccountGroup
	if err := db.Where("user_id = ?", userID).Order("code asc, name asc").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var rows []sideRow
	if err := between(db.Model(&models.LedgerEntry{}), nil, asOf).
		Select("account_group_id, side, amount").
		Where("user_id = ?", userID).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	type sums struct{ debit, credit decimal.Decimal }
	byGroup := map[uint]*sums{}
	for _, r := range rows {
		s := byGroup[r.AccountGroupID]
		if s == nil {
			s = &sums{}
			byGroup[r.AccountGroupID] = s
		}
		if r.Side == string(models.SideDebit) {
			s.debit = s.debit.Add(r.Amount)
		} else {
			s.credit = s.credit.Add(r.Amount)
		}
	}

	bs := &BalanceSheet{
		AsOf:        dates.Format(asOf),
		Assets:      SheetSection{Lines: []SheetLine{}},
		Liabilities: SheetSection{Lines: []SheetLine{}},
		Equity:      SheetSection{Lines: []SheetLine{}},
	}
	for _, g := range groups {
		line := SheetLine{AccountGroupID: g.ID, Name: g.Name, Code: g.Code, Class: g.Class}
		if s := byGroup[g.ID]; s != nil {
			line.Debit, line.Credit = s.debit, s.credit
		}
		line.Balance = naturalBalance(g.Class, line.Debit, line.Credit)
		bs.section(g.Class).append(line)
	}

	if includeEarnings {
		profit, err := earnings(db, userID, asOf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		bs.Equity.append(SheetLine{Name: CurrentEarningsName, Class: models.AccountClassEquity, Balance: profit})
	}

	bs.Balanced = bs.Assets.Total.Equal(bs.Liabilities.Total.Add(bs.Equity.Total))
	return bs, nil
}

func (bs *BalanceSheet) section(class models.AccountClass) *SheetSection {
	switch class {
	case models.AccountClassLiability:
		return &bs.Liabilities
	case models.AccountClassEquity:
		return &bs.Equity
	default:
		return &bs.Assets
	}
}

func (s *SheetSection) append(line SheetLine) {
	s.Lines = append(s.Lines, line)
	s.Total = s.Total.Add(line.Balance)
}
