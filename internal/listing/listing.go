package listing

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"defter-backend/internal/apperr"
	"defter-backend/internal/dates"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Query holds the search, filter and sort options shared by list endpoints.
type Query struct {
	Search         string
	Status         string
	From           *time.Time
	To             *time.Time
	PartyID        uint
	CategoryID     uint
	AccountGroupID uint
	Sort           string
	Desc           bool
}

// Parse reads q, status, from, to, party_id, category_id, account_group_id,
// sort and order. sorts lists the accepted sort keys; the first one is the
// default.
func Parse(c *fiber.Ctx, sorts ...string) (Query, error) {
	const op = "listing.Parse"
	q := Query{
		Search: strings.Clone(strings.TrimSpace(c.Query("q"))),
		Status: strings.Clone(strings.TrimSpace(c.Query("status"))),
		Desc:   true,
	}

	var err error
	if q.From, err = dates.ParseOptional(c.Query("from")); err != nil {
		return q, apperr.Invalid(op, "from", err.Error())
	}
	if q.To, err = dates.ParseOptional(c.Query("to")); err != nil {
		return q, apperr.Invalid(op, "to", err.Error())
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return q, apperr.Invalid(op, "to", "to must not be before from")
	}

	for key, dst := range map[string]*uint{
		"party_id":         &q.PartyID,
		"category_id":      &q.CategoryID,
		"account_group_id": &q.AccountGroupID,
	} {
		if v := c.Query(key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return q, apperr.Invalid(op, key, "must be a positive integer")
			}
			*dst = uint(n)
		}
	}

	if len(sorts) > 0 {
		q.Sort = sorts[0]
	}
	if s := c.Query("sort"); s != "" {
		if !slices.Contains(sorts, s) {
			return q, apperr.Invalid(op, "sort", "sort must be one of "+strings.Join(sorts, ", "))
		}
		q.Sort = strings.Clone(s)
	}
	switch strings.ToLower(c.Query("order")) {
	case "", "desc":
	case "asc":
		q.Desc = false
	default:
		return q, apperr.Invalid(op, "order", "order must be asc or desc")
	}
	return q, nil
}

// DateRange adds an inclusive date filter on column.
func (q Query) DateRange(db *gorm.DB, column string) *gorm.DB {
	if q.From != nil {
		db = db.Where(column+" >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where(column+" < ?", q.To.AddDate(0, 0, 1))
	}
	return db
}

// Matches reports whether search occurs in any field, ignoring case.
// An empty search matches everything.
func Matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Filter keeps the rows whose fields match search.
func Filter[T any](rows []T, search string, fields func(T) []string) []T {
	if search == "" {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if Matches(search, fields(r)...) {
			out = append(out, r)
		}
	}
	return out
}

// Sort orders rows by cmp, reversed when desc. The sort is stable.
func Sort[T any](rows []T, desc bool, cmp func(a, b T) int) {
	slices.SortStableFunc(rows, func(a, b T) int {
		if desc {
			return cmp(b, a)
		}
		return cmp(a, b)
	})
}

// CompareText compares strings ignoring case.
func CompareText(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
