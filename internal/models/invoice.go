package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceType string

const (
	InvoiceTypeSales    InvoiceType = "sales"
	InvoiceTypePurchase InvoiceType = "purchase"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeSales || t == InvoiceTypePurchase
}

// PartyKind is the counterparty kind an invoice of this type must reference.
func (t InvoiceType) PartyKind() PartyKind {
	if t == InvoiceTypePurchase {
		return PartyKindVendor
	}
	return PartyKindCustomer
}

type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusUnpaid        InvoiceStatus = "unpaid"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusCancelled     InvoiceStatus = "cancelled"
)

var invoiceStatuses = map[InvoiceStatus]bool{
	InvoiceStatusDraft:         true,
	InvoiceStatusUnpaid:        true,
	InvoiceStatusPartiallyPaid: true,
	InvoiceStatusPaid:          true,
	InvoiceStatusOverdue:       true,
	InvoiceStatusCancelled:     true,
}

func (s InvoiceStatus) Valid() bool { return invoiceStatuses[s] }

// Invoice is the header of a sales or purchase invoice.
type Invoice struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `gorm:"index;not null" json:"user_id"`
	Type       InvoiceType     `gorm:"size:20;not null;index" json:"type"`
	Number     string          `gorm:"size:50;not null;index" json:"number"`
	PartyID    uint            `gorm:"index;not null" json:"party_id"`
	Party      *Party          `gorm:"foreignKey:PartyID" json:"party,omitempty"`
	Date       time.Time       `gorm:"index;not null" json:"date"`
	DueDate    *time.Time      `json:"due_date"`
	Status     InvoiceStatus   `gorm:"size:20;not null;index" json:"status"`
	Subtotal   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	TaxRate    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_rate"` // percent
	TaxAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	Notes      string          `gorm:"size:1000" json:"notes"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	InvoiceID   uint            `gorm:"index;not null" json:"invoice_id"`
	ProductID   *uint           `gorm:"index" json:"product_id"`
	Description string          `gorm:"size:255;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
}

// Outstanding is the unpaid part of the total, never negative.
func (i *Invoice) Outstanding() decimal.Decimal {
	out := i.Total.Sub(i.AmountPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// IsIssued reports whether the invoice counts towards balances and reports.
func (i *Invoice) IsIssued() bool {
	return i.Status != InvoiceStatusDraft && i.Status != InvoiceStatusCancelled
}

// DeriveStatus recomputes the payment status from AmountPaid and DueDate.
// Draft and cancelled invoices keep their status.
func (i *Invoice) DeriveStatus(today time.Time) InvoiceStatus {
	if !i.IsIssued() {
		return i.Status
	}
	switch {
	case i.Total.IsPositive() && i.AmountPaid.GreaterThanOrEqual(i.Total):
		return InvoiceStatusPaid
	case i.AmountPaid.IsPositive():
		return InvoiceStatusPartiallyPaid
	case i.DueDate != nil && i.DueDate.Before(today):
		return InvoiceStatusOverdue
	default:
		return InvoiceStatusUnpaid
	}
}

// ReplaceItems deletes the stored lines and inserts i.Items. Lines without
// an ID get new ones; lines from an audit snapshot are reinserted with theirs.
func (i *Invoice) ReplaceItems(tx *gorm.DB) error {
	if err := tx.Where("invoice_id = ?", i.ID).Delete(&InvoiceItem{}).Error; err != nil {
		return err
	}
	if len(i.Items) == 0 {
		return nil
	}
	for idx := range i.Items {
		i.Items[idx].InvoiceID = i.ID
	}
	return tx.Create(&i.Items).Error
}
