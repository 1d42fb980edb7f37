package events

import (
	"context"
	"testing"
)

func TestRecorderFiltersByType(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	r.Publish(ctx, Event{Type: InvoiceCreated, EntityID: 1})
	r.Publish(ctx, Event{Type: PaymentCompleted, EntityID: 2})
	r.Publish(ctx, Event{Type: InvoiceCreated, EntityID: 3})

	if got := len(r.Events()); got != 3 {
		t.Fatalf("all events = %d", got)
	}
	got := r.Events(InvoiceCreated)
	if len(got) != 2 || got[1].EntityID != 3 {
		t.Fatalf("invoice events = %+v", got)
	}
}

func TestNoopIsPublisher(t *testing.T) {
	var p Publisher = Noop{}
	p.Publish(context.Background(), Event{Type: ReturnCompleted})
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
