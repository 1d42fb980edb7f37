package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Error kinds. Every *Error wraps exactly one of these.
var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid input")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

// Error carries the failing operation and, for validation failures, the
// offending field.
type Error struct {
	Op    string // e.g. "invoice.Create"
	Kind  error
	Field string
	Msg   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(op, what string) error {
	return &Error{Op: op, Kind: ErrNotFound, Msg: what + " not found"}
}

func Invalid(op, field, msg string) error {
	return &Error{Op: op, Kind: ErrInvalid, Field: field, Msg: msg}
}

func Conflict(op, msg string) error {
	return &Error{Op: op, Kind: ErrConflict, Msg: msg}
}

func Forbidden(op, msg string) error {
	return &Error{Op: op, Kind: ErrForbidden, Msg: msg}
}

// FromDB maps gorm's record-not-found onto ErrNotFound and wraps anything
// else. Errors that already carry a kind pass through.
func FromDB(op, what string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(op, what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Conflict(op, what+" already exists")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Status returns the HTTP status for err, 500 when it is not a known kind.
func Status(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}
