package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Company holds the bookkeeping owner's business details. One per user.
type Company struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	UserID     uint   `gorm:"uniqueIndex;not null" json:"user_id"`
	Name       string `gorm:"size:200;not null" json:"name"`
	Email      string `gorm:"size:100" json:"email"`
	Phone      string `gorm:"size:50" json:"phone"`
	Address    string `gorm:"size:255" json:"address"`
	City       string `gorm:"size:100" json:"city"`
	State      string `gorm:"size:100" json:"state"`
	PostalCode string `gorm:"size:20" json:"postal_code"`
	Country    string `gorm:"size:100" json:"country"`
	TaxNumber  string `gorm:"size:50" json:"tax_number"`
	Website    string `gorm:"size:255" json:"website"`
	Currency   string `gorm:"size:3;not null;default:'USD'" json:"currency"`

	// Percent, applied to new invoices when the request carries no rate.
	DefaultTaxRate decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"default_tax_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
