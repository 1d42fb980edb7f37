package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentDirection string

const (
	PaymentDirectionIn  PaymentDirection = "in"  // from customers
	PaymentDirectionOut PaymentDirection = "out" // to vendors
)

func (d PaymentDirection) Valid() bool {
	return d == PaymentDirectionIn || d == PaymentDirectionOut
}

// InvoiceType is the invoice type a payment in this direction settles.
func (d PaymentDirection) InvoiceType() InvoiceType {
	if d == PaymentDirectionOut {
		return InvoiceTypePurchase
	}
	return InvoiceTypeSales
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPending || s == PaymentStatusCompleted || s == PaymentStatusCancelled
}

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheque       PaymentMethod = "cheque"
	PaymentMethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodCheque, PaymentMethodOther:
		return true
	}
	return false
}

// Payment is a payment header; Items allocate Amount across invoices.
type Payment struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UserID         uint             `gorm:"index;uniqueIndex:idx_payment_idempotency;not null" json:"user_id"`
	Direction      PaymentDirection `gorm:"size:10;not null;index" json:"direction"`
	Number         string           `gorm:"size:50;not null;index" json:"number"`
	PartyID        uint             `gorm:"index;not null" json:"party_id"`
	Party          *Party           `gorm:"foreignKey:PartyID" json:"party,omitempty"`
	Date           time.Time        `gorm:"index;not null" json:"date"`
	Amount         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"amount"`
	Method         PaymentMethod    `gorm:"size:20;not null" json:"method"`
	Reference      string           `gorm:"size:100" json:"reference"`
	Notes          string           `gorm:"size:1000" json:"notes"`
	Status         PaymentStatus    `gorm:"size:20;not null;index" json:"status"`
	IdempotencyKey *string          `gorm:"size:64;uniqueIndex:idx_payment_idempotency" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`

	Items []PaymentItem `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE" json:"items"`
}

type PaymentItem struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PaymentID uint            `gorm:"index;not null" json:"payment_id"`
	InvoiceID uint            `gorm:"index;not null" json:"invoice_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
}

func (p *Payment) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range p.Items {
		total = total.Add(it.Amount)
	}
	return total
}

func (p *Payment) InvoiceIDs() []uint {
	ids := make([]uint, 0, len(p.Items))
	seen := make(map[uint]bool, len(p.Items))
	for _, it := range p.Items {
		if !seen[it.InvoiceID] {
			seen[it.InvoiceID] = true
			ids = append(ids, it.InvoiceID)
		}
	}
	return ids
}

func (p *Payment) ReplaceItems(tx *gorm.DB) error {
	if err := tx.Where("payment_id = ?", p.ID).Delete(&PaymentItem{}).Error; err != nil {
		return err
	}
	if len(p.Items) == 0 {
		return nil
	}
	for idx := range p.Items {
		p.Items[idx].PaymentID = p.ID
	}
	return tx.Create(&p.Items).Error
}
