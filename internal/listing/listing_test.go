package listing

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func parseURL(t *testing.T, url string, sorts ...string) (Query, error) {
	t.Helper()
	var q Query
	var perr error
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		q, perr = Parse(c, sorts...)
		return nil
	})
	if _, err := app.Test(httptest.NewRequest("GET", url, nil)); err != nil {
		t.Fatalf("request: %v", err)
	}
	return q, perr
}

func TestParse(t *testing.T) {
	q, err := parseURL(t, "/?q=%20Acme%20&status=paid&from=2024-01-01&to=2024-01-31&party_id=7&sort=amount&order=asc", "date", "amount")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if q.Search != "Acme" || q.Status != "paid" || q.PartyID != 7 {
		t.Errorf("query = %+v", q)
	}
	if q.Sort != "amount" || q.Desc {
		t.Errorf("sort = %s desc=%v", q.Sort, q.Desc)
	}
	if q.From == nil || q.To == nil || q.To.Day() != 31 {
		t.Errorf("dates = %v %v", q.From, q.To)
	}
}

func TestParseDefaults(t *testing.T) {
	q, err := parseURL(t, "/", "date", "amount")
	if err != nil {
		t.Fatal(err)
	}
	if q.Sort != "date" || !q.Desc {
		t.Errorf("defaults = %+v", q)
	}
}

func TestParseRejects(t *testing.T) {
	for _, url := range []string{
		"/?from=01-01-2024",
		"/?from=2024-02-01&to=2024-01-01",
		"/?sort=colour",
		"/?order=sideways",
		"/?party_id=abc",
	} {
		if _, err := parseURL(t, url, "date"); err == nil {
			t.Errorf("%s: expected error", url)
		}
	}
}

func TestMatchesIgnoresCase(t *testing.T) {
	if !Matches("acme", "INV-1", "ACME Ltd") {
		t.Error("expected case-insensitive match")
	}
	if Matches("zeta", "INV-1", "ACME Ltd") {
		t.Error("unexpected match")
	}
	if !Matches("", "anything") {
		t.Error("empty search must match")
	}
}

func TestSortDirections(t *testing.T) {
	rows := []int{3, 1, 2, 2}
	cmp := func(a, b int) int { return a - b }

	Sort(rows, false, cmp)
	for i := 1; i < len(rows); i++ {
		if rows[i-1] > rows[i] {
			t.Fatalf("asc not non-decreasing: %v", rows)
		}
	}
	Sort(rows, true, cmp)
	for i := 1; i < len(rows); i++ {
		if rows[i-1] < rows[i] {
			t.Fatalf("desc not non-increasing: %v", rows)
		}
	}
}

func TestFilter(t *testing.T) {
	type row struct{ name string }
	rows := []row{{"Alpha"}, {"beta"}, {"ALPHABET"}}
	got := Filter(rows, "alpha", func(r row) []string { return []string{r.name} })
	if len(got) != 2 {
		t.Errorf("Filter = %v", got)
	}
	if len(rows) != 3 || rows[1].name != "beta" {
		t.Error("Filter modified its input")
	}
}
