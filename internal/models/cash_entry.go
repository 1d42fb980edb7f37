package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CashEntryKind string

const (
	CashEntryIncome  CashEntryKind = "income"
	CashEntryExpense CashEntryKind = "expense"
)

func (k CashEntryKind) Valid() bool {
	return k == CashEntryIncome || k == CashEntryExpense
}

func (k CashEntryKind) CategoryType() CategoryType {
	if k == CashEntryExpense {
		return CategoryTypeExpense
	}
	return CategoryTypeIncome
}

// CashEntry is a standalone income or expense not tied to an invoice.
type CashEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	Kind          CashEntryKind   `gorm:"size:20;not null;index" json:"kind"`
	CategoryID    *uint           `gorm:"index" json:"category_id"`
	Category      *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Date          time.Time       `gorm:"index;not null" json:"date"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Reference     string          `gorm:"size:100" json:"reference"`
	Description   string          `gorm:"size:500" json:"description"`
	ReceiptFile   string          `gorm:"size:255" json:"receipt_file,omitempty"` // name under RECEIPT_PATH
	HasReceipt    bool            `gorm:"-" json:"has_receipt"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (e *CashEntry) AfterFind(tx *gorm.DB) error {
	e.HasReceipt = e.ReceiptFile != ""
	return nil
}
