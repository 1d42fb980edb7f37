package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PartyKind string

const (
	PartyKindCustomer PartyKind = "customer"
	PartyKindVendor   PartyKind = "vendor"
)

func (k PartyKind) Valid() bool {
	return k == PartyKindCustomer || k == PartyKindVendor
}

// Party is a counterparty: customers for sales, vendors for purchases.
type Party struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	UserID         uint            `gorm:"index;not null" json:"user_id"`
	Kind           PartyKind       `gorm:"size:20;not null;index" json:"kind"`
	Name           string          `gorm:"size:200;not null" json:"name"`
	Email          string          `gorm:"size:100" json:"email"`
	Phone          string          `gorm:"size:50" json:"phone"`
	Address        string          `gorm:"size:255" json:"address"`
	TaxNumber      string          `gorm:"size:50" json:"tax_number"`
	Notes          string          `gorm:"size:1000" json:"notes"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"opening_balance"`
	Balance        decimal.Decimal `gorm:"-" json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}
