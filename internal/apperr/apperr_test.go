package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x.Get", "invoice"), 404},
		{Invalid("x.Create", "amount", "must be positive"), 400},
		{Conflict("x.Create", "duplicate"), 409},
		{Forbidden("x.Reset", "disabled"), 403},
		{fmt.Errorf("wrap: %w", Invalid("x", "f", "m")), 400},
		{fiber.NewError(fiber.StatusUnauthorized, "no"), 401},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFromDB(t *testing.T) {
	if err := FromDB("op", "party", nil); err != nil {
		t.Fatalf("nil in, got %v", err)
	}
	if err := FromDB("op", "party", gorm.ErrRecordNotFound); !errors.Is(err, ErrNotFound) {
		t.Errorf("record not found mapped to %v", err)
	}
	if err := FromDB("op", "party", gorm.ErrDuplicatedKey); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate mapped to %v", err)
	}
	other := errors.New("disk full")
	if err := FromDB("op", "party", other); !errors.Is(err, other) || Status(err) != 500 {
		t.Errorf("other error mapped to %v", err)
	}
	kinded := Invalid("inner", "name", "name is required")
	if err := FromDB("op", "party", kinded); err != kinded {
		t.Errorf("kinded error rewrapped as %v", err)
	}
}

func TestHandlerBody(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: Handler})
	app.Get("/invalid", func(c *fiber.Ctx) error {
		return Invalid("test", "email", "email is required")
	})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("secret details") })

	resp, _ := app.Test(httptest.NewRequest("GET", "/invalid", nil))
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "email is required" || body["field"] != "email" {
		t.Errorf("body = %v", body)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/boom", nil))
	if resp.StatusCode != 500 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body = nil
	json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] == "secret details" {
		t.Error("internal error leaked to client")
	}
}
