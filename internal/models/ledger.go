package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountClass string

const (
	AccountClassAsset     AccountClass = "asset"
	AccountClassLiability AccountClass = "liability"
	AccountClassEquity    AccountClass = "equity"
)

func (c AccountClass) Valid() bool {
	return c == AccountClassAsset || c == AccountClassLiability || c == AccountClassEquity
}

// AccountGroup is a balance sheet line such as "Cash" or "Bank loan".
type AccountGroup struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"index;not null" json:"user_id"`
	Name        string         `gorm:"size:100;not null" json:"name"`
	Code        string         `gorm:"size:20" json:"code"`
	Class       AccountClass   `gorm:"size:20;not null;index" json:"class"`
	Description string         `gorm:"size:255" json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

type EntrySide string

const (
	SideDebit  EntrySide = "debit"
	SideCredit EntrySide = "credit"
)

func (s EntrySide) Valid() bool { return s == SideDebit || s == SideCredit }

type LedgerEntry struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"index;not null" json:"user_id"`
	AccountGroupID uint            `gorm:"index;not null" json:"account_group_id"`
	AccountGroup   *AccountGroup   `gorm:"foreignKey:AccountGroupID" json:"account_group,omitempty"`
	Date           time.Time       `gorm:"index;not null" json:"date"`
	Side           EntrySide       `gorm:"size:10;not null" json:"side"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Description    string          `gorm:"size:255" json:"description"`
	Reference      string          `gorm:"size:100" json:"reference"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}
