package product

import (
	"context"
	"fmt"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"
	"defter-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var SortKeys = []string{"name", "amount", "date"}

type Input struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Unit          string          `json:"unit"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Description   string          `json:"description"`
}

// List returns the user's products; "amount" sorts by sale price.
func List(ctx context.Context, userID uint, q listing.Query) ([]models.Product, error) {
	var products []models.Product
	db := database.DB.WithContext(ctx).Where("user_id = ?", userID)
	if err := q.DateRange(db, "created_at").Find(&products).Error; err != nil {
		return nil, err
	}

	products = listing.Filter(products, q.Search, func(p models.Product) []string {
		return []string{p.Name, p.SKU}
	})
	listing.Sort(products, q.Desc, func(a, b models.Product) int {
		switch q.Sort {
		case "amount":
			return a.SalePrice.Cmp(b.SalePrice)
		case "date":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return listing.CompareText(a.Name, b.Name)
		}
	})
	return products, nil
}

func Get(ctx context.Context, userID, id uint) (*models.Product, error) {
	return find(database.DB.WithContext(ctx), userID, id)
}

func find(db *gorm.DB, userID, id uint) (*models.Product, error) {
	var p models.Product
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
		return nil, apperr.FromDB("product.Get", "product", err)
	}
	return &p, nil
}

func Create(ctx context.Context, userID uint, in Input) (*models.Product, error) {
	var p *models.Product
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = create(tx, userID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func create(tx *gorm.DB, userID uint, in Input) (*models.Product, error) {
	const op = "product.Create"
	p := models.Product{UserID: userID}
	if err := apply(tx, op, &p, in); err != nil {
		return nil, err
	}
	if err := tx.Create(&p).Error; err != nil {
		return nil, apperr.FromDB(op, "product", err)
	}
	if err := audit.WriteLog(tx, audit.LogOptions{
		UserID:      userID,
		EntityType:  models.EntityProduct,
		EntityID:    p.ID,
		Action:      models.AuditActionCreate,
		Description: "Product created: " + p.Name,
		After:       p,
	}); err != nil {
		return nil, err
	}
	return &p, nil
}

func Update(ctx context.Context, userID, id uint, in Input) (*models.Product, error) {
	var p *models.Product
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = update(tx, userID, id, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func update(tx *gorm.DB, userID, id uint, in Input) (*models.Product, error) {
	const op = "product.Update"
	p, err := find(tx, userID, id)
	if err != nil {
		return nil, err
	}
	before := *p
	if err := apply(tx, op, p, in); err != nil {
		return nil, err
	}
	if err := tx.Save(p).Error; err != nil {
		return nil, apperr.FromDB(op, "product", err)
	}
	if err := audit.WriteLog(tx, audit.LogOptions{
		UserID:      userID,
		EntityType:  models.EntityProduct,
		EntityID:    p.ID,
		Action:      models.AuditActionUpdate,
		Description: "Product updated: " + p.Name,
		Before:      before,
		After:       p,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete soft deletes a product. Invoice lines keep their own description
// and prices, so existing documents are unaffected.
func Delete(ctx context.Context, userID, id uint) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := find(tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(p).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityProduct,
			EntityID:    p.ID,
			Action:      models.AuditActionDelete,
			Description: "Product deleted: " + p.Name,
			Before:      p,
		})
	})
}

func apply(tx *gorm.DB, op string, p *models.Product, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid(op, "name", "name is required")
	}
	if in.SalePrice.IsNegative() {
		return apperr.Invalid(op, "sale_price", "sale price cannot be negative")
	}
	if in.PurchasePrice.IsNegative() {
		return apperr.Invalid(op, "purchase_price", "purchase price cannot be negative")
	}
	if !money.ValidRate(in.TaxRate) {
		return apperr.Invalid(op, "tax_rate", "tax rate must be between 0 and 100")
	}

	sku := strings.TrimSpace(in.SKU)
	if sku != "" {
		var n int64
		if err := tx.Model(&models.Product{}).
			Where("user_id = ? AND sku = ? AND id <> ?", p.UserID, sku, p.ID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.Invalid(op, "sku", fmt.Sprintf("SKU %s is already used", sku))
		}
	}

	p.Name = name
	p.SKU = sku
	p.Unit = strings.TrimSpace(in.Unit)
	p.SalePrice = in.SalePrice
	p.PurchasePrice = in.PurchasePrice
	p.TaxRate = in.TaxRate
	p.Description = strings.TrimSpace(in.Description)
	return nil
}
