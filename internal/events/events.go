package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceCreated   = "invoice.created"
	InvoiceCancelled = "invoice.cancelled"
	PaymentCompleted = "payment.completed"
	ReturnCompleted  = "return.completed"
)

// Event is the payload published for bookkeeping changes.
type Event struct {
	Type       string          `json:"type"`
	UserID     uint            `json:"user_id"`
	EntityID   uint            `json:"entity_id"`
	Number     string          `json:"number"`
	Kind       string          `json:"kind"` // sales/purchase or in/out
	PartyID    uint            `json:"party_id"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Publisher delivers events. Implementations must not block the caller on
// broker availability; failures are theirs to log.
type Publisher interface {
	Publish(ctx context.Context, e Event)
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
func (Noop) Close() error                   { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published, optionally only of one type.
func (r *Recorder) Events(types ...string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if len(types) == 0 || contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
