package product

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"defter-backend/internal/apperr"
	"defter-backend/internal/database"
	"defter-backend/internal/listing"
	"defter-backend/internal/logger"
	"defter-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Columns of the product sheet, in export order.
var Columns = []string{"Name", "SKU", "Unit", "Sale price", "Purchase price", "Tax rate", "Description"}

type RowError struct {
	Row   int    `json:"row"` // 1-based sheet row
	Error string `json:"error"`
}

type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

// ImportXLSX reads products from the first sheet. A header row is detected
// by its first cell and may order the columns freely; without one the export
// order is assumed. Rows whose SKU matches an existing product update it.
func ImportXLSX(ctx context.Context, userID uint, r io.Reader) (*ImportResult, error) {
	const op = "product.Import"
	log := logger.WithComponent("product-import")

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Invalid(op, "file", "could not read Excel file: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Invalid(op, "file", "the workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Invalid(op, "file", "could not read sheet: "+err.Error())
	}
	if len(rows) == 0 {
		return nil, apperr.Invalid(op, "file", "the sheet is empty")
	}

	cols := defaultColumns()
	start := 0
	if isHeader(rows[0]) {
		cols = headerColumns(rows[0])
		start = 1
		if _, ok := cols["name"]; !ok {
			return nil, apperr.Invalid(op, "file", "header row has no Name column")
		}
	}

	res := &ImportResult{Errors: []RowError{}}
	err = database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := start; i < len(rows); i++ {
			row := rows[i]
			if blank(row) {
				res.Skipped++
				continue
			}
			in, err := rowInput(row, cols)
			if err != nil {
				res.Errors = append(res.Errors, RowError{Row: i + 1, Error: err.Error()})
				continue
			}

			var existing models.Product
			found := in.SKU != "" &&
				tx.Where("user_id = ? AND sku = ?", userID, in.SKU).Limit(1).Find(&existing).RowsAffected > 0

			if found {
				_, err = update(tx, userID, existing.ID, in)
			} else {
				_, err = create(tx, userID, in)
			}
			var ae *apperr.Error
			if errors.As(err, &ae) && errors.Is(err, apperr.ErrInvalid) {
				res.Errors = append(res.Errors, RowError{Row: i + 1, Error: ae.Msg})
				continue
			}
			if err != nil {
				return err
			}
			if found {
				res.Updated++
			} else {
				res.Created++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Uint("user_id", userID).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", len(res.Errors)).
		Msg("products imported")
	return res, nil
}

// ExportXLSX writes the user's products in the import layout.
func ExportXLSX(ctx context.Context, userID uint, w io.Writer) error {
	products, err := List(ctx, userID, listing.Query{Sort: "name"})
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Products"
	f.SetSheetName(f.GetSheetName(0), sheet)

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, p := range products {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			p.Name, p.SKU, p.Unit,
			p.SalePrice.StringFixed(2), p.PurchasePrice.StringFixed(2), p.TaxRate.String(),
			p.Description,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func defaultColumns() map[string]int {
	return map[string]int{
		"name": 0, "sku": 1, "unit": 2, "sale_price": 3,
		"purchase_price": 4, "tax_rate": 5, "description": 6,
	}
}

var headerAliases = map[string]string{
	"name":           "name",
	"product":        "name",
	"product name":   "name",
	"sku":            "sku",
	"code":           "sku",
	"unit":           "unit",
	"sale price":     "sale_price",
	"price":          "sale_price",
	"purchase price": "purchase_price",
	"cost":           "purchase_price",
	"tax rate":       "tax_rate",
	"tax":            "tax_rate",
	"vat":            "tax_rate",
	"description":    "description",
}

func isHeader(row []string) bool {
	if len(row) == 0 {
		return false
	}
	_, ok := headerAliases[strings.ToLower(strings.TrimSpace(row[0]))]
	return ok
}

func headerColumns(row []string) map[string]int {
	cols := map[string]int{}
	for i, cell := range row {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]; ok {
			if _, dup := cols[key]; !dup {
				cols[key] = i
			}
		}
	}
	return cols
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func rowInput(row []string, cols map[string]int) (Input, error) {
	cell := func(key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	num := func(key string) (decimal.Decimal, error) {
		s := strings.TrimSpace(strings.TrimSuffix(cell(key), "%"))
		if s == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %q is not a number", strings.ReplaceAll(key, "_", " "), s)
		}
		return d, nil
	}

	in := Input{
		Name:        cell("name"),
		SKU:         cell("sku"),
		Unit:        cell("unit"),
		Description: cell("description"),
	}
	var err error
	if in.SalePrice, err = num("sale_price"); err != nil {
		return in, err
	}
	if in.PurchasePrice, err = num("purchase_price"); err != nil {
		return in, err
	}
	if in.TaxRate, err = num("tax_rate"); err != nil {
		return in, err
	}
	return in, nil
}
