package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"index;not null" json:"user_id"`
	Name          string          `gorm:"size:200;not null" json:"name"`
	SKU           string          `gorm:"size:50;index" json:"sku"` // optional, unique per user
	Unit          string          `gorm:"size:20" json:"unit"`
	SalePrice     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"sale_price"`
	PurchasePrice decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"purchase_price"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"tax_rate"`
	Description   string          `gorm:"size:500" json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}
