// Package numbering hands out document numbers such as INV-00001.
package numbering

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Series identifies one numbered document sequence of a user.
type Series struct {
	Model      any    // e.g. &models.Invoice{}
	TypeColumn string // "type" or "direction"
	TypeValue  string
	Prefix     string // e.g. "INV"
}

// Next returns the number following the highest one in the series,
// soft-deleted documents included so numbers are never reused.
func Next(tx *gorm.DB, userID uint, s Series) (string, error) {
	var numbers []string
	err := tx.Session(&gorm.Session{NewDB: true}).Unscoped().Model(s.Model).
		Where("user_id = ? AND "+s.TypeColumn+" = ? AND number LIKE ?", userID, s.TypeValue, s.Prefix+"-%").
		Pluck("number", &numbers).Error
	if err != nil {
		return "", err
	}

	max := 0
	for _, n := range numbers {
		if v, err := strconv.Atoi(strings.TrimPrefix(n, s.Prefix+"-")); err == nil && v > max {
			max = v
		}
	}
	return Format(s.Prefix, max+1), nil
}

func Format(prefix string, n int) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// Taken reports whether number is already used in the series by another
// document than exceptID.
func Taken(tx *gorm.DB, userID uint, s Series, number string, exceptID uint) (bool, error) {
	var n int64
	err := tx.Session(&gorm.Session{NewDB: true}).Unscoped().Model(s.Model).
		Where("user_id = ? AND "+s.TypeColumn+" = ? AND number = ? AND id <> ?", userID, s.TypeValue, number, exceptID).
		Count(&n).Error
	return n > 0, err
}
