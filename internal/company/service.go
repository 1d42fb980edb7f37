package company

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/models"
	"defter-backend/internal/money"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

// Get returns the user's company profile, creating an empty one if missing.
func Get(ctx context.Context, userID uint) (*models.Company, error) {
	db := database.DB.WithContext(ctx)
	var c models.Company
	err := db.Where("user_id = ?", userID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = models.Company{UserID: userID, Name: "My company", Currency: "USD"}
		err = db.Create(&c).Error
	}
	if err != nil {
		return nil, apperr.FromDB("company.Get", "company", err)
	}
	return &c, nil
}

// DefaultTaxRate is the rate applied to documents that carry none.
func DefaultTaxRate(ctx context.Context, userID uint) decimal.Decimal {
	c, err := Get(ctx, userID)
	if err != nil {
		return decimal.Zero
	}
	return c.DefaultTaxRate
}

type Input struct {
	Name           string           `json:"name"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone"`
	Address        string           `json:"address"`
	City           string           `json:"city"`
	State          string           `json:"state"`
	PostalCode     string           `json:"postal_code"`
	Country        string           `json:"country"`
	TaxNumber      string           `json:"tax_number"`
	Website        string           `json:"website"`
	Currency       string           `json:"currency"`
	DefaultTaxRate *decimal.Decimal `json:"default_tax_rate"`
}

func Update(ctx context.Context, userID uint, in Input) (*models.Company, error) {
	const op = "company.Update"

	c, err := Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	before := *c

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid(op, "name", "company name is required")
	}
	c.Name = name
	c.Email = strings.TrimSpace(in.Email)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Address = strings.TrimSpace(in.Address)
	c.City = strings.TrimSpace(in.City)
	c.State = strings.TrimSpace(in.State)
	c.PostalCode = strings.TrimSpace(in.PostalCode)
	c.Country = strings.TrimSpace(in.Country)
	c.TaxNumber = strings.TrimSpace(in.TaxNumber)
	c.Website = strings.TrimSpace(in.Website)
	if in.Currency != "" {
		cur := strings.ToUpper(strings.TrimSpace(in.Currency))
		if !currencyRe.MatchString(cur) {
			return nil, apperr.Invalid(op, "currency", "currency must be a 3 letter ISO code")
		}
		c.Currency = cur
	}
	if in.DefaultTaxRate != nil {
		if !money.ValidRate(*in.DefaultTaxRate) {
			return nil, apperr.Invalid(op, "default_tax_rate", "tax rate must be between 0 and 100")
		}
		c.DefaultTaxRate = *in.DefaultTaxRate
	}

	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      userID,
			EntityType:  models.EntityCompany,
			EntityID:    c.ID,
			Action:      models.AuditActionUpdate,
			Description: "Company profile updated",
			Before:      before,
			After:       c,
		})
	})
	if err != nil {
		return nil, apperr.FromDB(op, "company", err)
	}
	return c, nil
}
