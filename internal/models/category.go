package models

import (
	"time"

	"gorm.io/gorm"
)

type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

func (t CategoryType) Valid() bool {
	return t == CategoryTypeIncome || t == CategoryTypeExpense
}

const DefaultCategoryColor = "#9E9E9E"

// Category groups income or expense entries.
type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Type      CategoryType   `gorm:"size:20;not null;index" json:"type"`
	Name      string         `gorm:"size:100;not null" json:"name"`
	Color     string         `gorm:"size:7;not null;default:'#9E9E9E'" json:"color"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
