package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReturnType string

const (
	ReturnTypeSales    ReturnType = "sales"
	ReturnTypePurchase ReturnType = "purchase"
)

func (t ReturnType) Valid() bool {
	return t == ReturnTypeSales || t == ReturnTypePurchase
}

func (t ReturnType) InvoiceType() InvoiceType {
	if t == ReturnTypePurchase {
		return InvoiceTypePurchase
	}
	return InvoiceTypeSales
}

type ReturnStatus string

const (
	ReturnStatusPending   ReturnStatus = "pending"
	ReturnStatusApproved  ReturnStatus = "approved"
	ReturnStatusCompleted ReturnStatus = "completed"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

func (s ReturnStatus) Valid() bool {
	switch s {
	case ReturnStatusPending, ReturnStatusApproved, ReturnStatusCompleted, ReturnStatusRejected:
		return true
	}
	return false
}

// Return is a sales or purchase return against an original invoice.
type Return struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"index;not null" json:"user_id"`
	Type      ReturnType      `gorm:"size:20;not null;index" json:"type"`
	Number    string          `gorm:"size:50;not null;index" json:"number"`
	InvoiceID uint            `gorm:"index;not null" json:"invoice_id"`
	Invoice   *Invoice        `gorm:"foreignKey:InvoiceID" json:"invoice,omitempty"`
	PartyID   uint            `gorm:"index;not null" json:"party_id"`
	Party     *Party          `gorm:"foreignKey:PartyID" json:"party,omitempty"`
	Date      time.Time       `gorm:"index;not null" json:"date"`
	Status    ReturnStatus    `gorm:"size:20;not null;index" json:"status"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"subtotal"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_rate"`
	TaxAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_amount"`
	Total     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total"`
	Notes     string          `gorm:"size:1000" json:"notes"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`

	Items []ReturnItem `gorm:"foreignKey:ReturnID;constraint:OnDelete:CASCADE" json:"items"`
}

type ReturnItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ReturnID      uint            `gorm:"index;not null" json:"return_id"`
	InvoiceItemID uint            `gorm:"index;not null" json:"invoice_item_id"`
	ProductID     *uint           `json:"product_id"`
	Description   string          `gorm:"size:255;not null" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	LineTotal     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"line_total"`
	Reason        string          `gorm:"size:255" json:"reason"`
}

// Counts reports whether the return still reserves invoice quantity.
func (r *Return) Counts() bool {
	return r.Status != ReturnStatusRejected
}

func (r *Return) ReplaceItems(tx *gorm.DB) error {
	if err := tx.Where("return_id = ?", r.ID).Delete(&ReturnItem{}).Error; err != nil {
		return err
	}
	if len(r.Items) == 0 {
		return nil
	}
	for idx := range r.Items {
		r.Items[idx].ReturnID = r.ID
	}
	return tx.Create(&r.Items).Error
}
