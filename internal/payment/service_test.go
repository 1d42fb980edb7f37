package payment

import (
	"context"
	"errors"
	"testing"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/database"
	"defter-backend/internal/invoice"
	"defter-backend/internal/models"
	"defter-backend/internal/testutil"

	"github.com/shopspring/decimal"
)

const key = "6f1c8a52-3b0e-4d7c-9a55-1e2f3a4b5c6d"

type fixture struct {
	ctx      context.Context
	user     models.User
	customer models.Party
}

func setup(t *testing.T) fixture {
	t.Helper()
	testutil.SetupDB(t)
	user := testutil.SeedUser(t, "pay@test.com")
	return fixture{
		ctx:      context.Background(),
		user:     user,
		customer: testutil.SeedParty(t, user.ID, models.PartyKindCustomer, "Acme Corp"),
	}
}

func (f fixture) invoice(t *testing.T, price string, status models.InvoiceStatus) *models.Invoice {
	t.Helper()
	zero := decimal.Zero
	inv, err := invoice.Create(f.ctx, f.user.ID, models.InvoiceTypeSales, invoice.Input{
		PartyID: f.customer.ID, Date: "2024-01-01", Status: status, TaxRate: &zero,
		Items: []invoice.ItemInput{{Description: "Service", Quantity: decimal.NewFromInt(1), UnitPrice: testutil.D(t, price)}},
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func (f fixture) reload(t *testing.T, id uint) models.Invoice {
	t.Helper()
	var inv models.Invoice
	if err := database.DB.First(&inv, id).Error; err != nil {
		t.Fatal(err)
	}
	return inv
}

func TestCreateAllocatesAcrossInvoices(t *testing.T) {
	f := setup(t)
	a := f.invoice(t, "100", "")
	b := f.invoice(t, "50", "")

	p, created, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-05", Method: models.PaymentMethodBankTransfer,
		Items: []ItemInput{{InvoiceID: a.ID, Amount: testutil.D(t, "40")}, {InvoiceID: b.ID, Amount: testutil.D(t, "50")}},
	}, "")
	if err != nil || !created {
		t.Fatalf("Create: %v created=%v", err, created)
	}
	if !p.Amount.Equal(testutil.D(t, "90")) || !p.Amount.Equal(p.ItemsTotal()) {
		t.Errorf("amount %s items %s", p.Amount, p.ItemsTotal())
	}
	if p.Number != "PIN-00001" || p.Status != models.PaymentStatusCompleted {
		t.Errorf("number %s status %s", p.Number, p.Status)
	}
	if got := f.reload(t, a.ID); got.Status != models.InvoiceStatusPartiallyPaid || !got.AmountPaid.Equal(testutil.D(t, "40")) {
		t.Errorf("invoice a = %s paid %s", got.Status, got.AmountPaid)
	}
	if got := f.reload(t, b.ID); got.Status != models.InvoiceStatusPaid {
		t.Errorf("invoice b = %s", got.Status)
	}
}

func TestCreateRejectsMismatchedAmount(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "100", "")
	amount := testutil.D(t, "99")
	_, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-05", Amount: &amount,
		Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "100")}},
	}, "")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Field != "amount" {
		t.Fatalf("err = %v, want invalid amount", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	open := f.invoice(t, "100", "")
	draft := f.invoice(t, "100", models.InvoiceStatusDraft)
	other := testutil.SeedParty(t, f.user.ID, models.PartyKindCustomer, "Other")

	tests := []struct {
		name  string
		dir   models.PaymentDirection
		in    Input
		field string
	}{
		{"no items", models.PaymentDirectionIn, Input{PartyID: f.customer.ID, Date: "2024-01-05"}, "items"},
		{"over outstanding", models.PaymentDirectionIn, Input{PartyID: f.customer.ID, Date: "2024-01-05",
			Items: []ItemInput{{InvoiceID: open.ID, Amount: testutil.D(t, "100.01")}}}, "items[0].amount"},
		{"draft invoice", models.PaymentDirectionIn, Input{PartyID: f.customer.ID, Date: "2024-01-05",
			Items: []ItemInput{{InvoiceID: draft.ID, Amount: testutil.D(t, "1")}}}, "items[0].invoice_id"},
		{"other party", models.PaymentDirectionIn, Input{PartyID: other.ID, Date: "2024-01-05",
			Items: []ItemInput{{InvoiceID: open.ID, Amount: testutil.D(t, "1")}}}, "items[0].invoice_id"},
		{"customer on payment out", models.PaymentDirectionOut, Input{PartyID: f.customer.ID, Date: "2024-01-05",
			Items: []ItemInput{{InvoiceID: open.ID, Amount: testutil.D(t, "1")}}}, "party_id"},
		{"negative amount", models.PaymentDirectionIn, Input{PartyID: f.customer.ID, Date: "2024-01-05",
			Items: []ItemInput{{InvoiceID: open.ID, Amount: testutil.D(t, "-1")}}}, "items[0].amount"},
		{"bad method", models.PaymentDirectionIn, Input{PartyID: f.customer.ID, Date: "2024-01-05", Method: "barter",
			Items: []ItemInput{{InvoiceID: open.ID, Amount: testutil.D(t, "1")}}}, "method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Create(f.ctx, f.user.ID, tt.dir, tt.in, "")
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Field != tt.field {
				t.Fatalf("err = %v, want invalid %s", err, tt.field)
			}
		})
	}
}

func TestOutstandingCountsOtherPayments(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "100", "")
	in := Input{PartyID: f.customer.ID, Date: "2024-01-05", Status: models.PaymentStatusPending,
		Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "70")}}}

	first, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, ""); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("second 70 on a 100 invoice: %v", err)
	}
	// the payment's own allocation does not count against itself
	in.Items[0].Amount = testutil.D(t, "100")
	if _, _, err := Update(f.ctx, f.user.ID, models.PaymentDirectionIn, first.ID, in); err != nil {
		t.Fatalf("raise own allocation: %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "100", "")
	in := Input{PartyID: f.customer.ID, Date: "2024-01-05", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "60")}}}

	first, created, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, key)
	if err != nil || !created {
		t.Fatalf("first: %v", err)
	}
	again, created, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, key)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("replay created=%v id=%d, want %d", created, again.ID, first.ID)
	}
	var n int64
	database.DB.Model(&models.Payment{}).Count(&n)
	if n != 1 {
		t.Errorf("payments = %d", n)
	}
	if got := f.reload(t, inv.ID); !got.AmountPaid.Equal(testutil.D(t, "60")) {
		t.Errorf("amount paid %s after replay", got.AmountPaid)
	}

	if err := Delete(f.ctx, f.user.ID, models.PaymentDirectionIn, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, key); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("key of deleted payment: %v", err)
	}
	if _, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, "not-a-uuid"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("malformed key: %v", err)
	}
}

func TestDeleteAndCancelRefreshInvoice(t *testing.T) {
	f := setup(t)
	inv := f.invoice(t, "100", "")
	in := Input{PartyID: f.customer.ID, Date: "2024-01-05", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "100")}}}

	p, _, _ := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, "")
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusPaid {
		t.Fatalf("status = %s", got.Status)
	}
	in.Status = models.PaymentStatusCancelled
	if _, _, err := Update(f.ctx, f.user.ID, models.PaymentDirectionIn, p.ID, in); err != nil {
		t.Fatal(err)
	}
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusUnpaid || !got.AmountPaid.IsZero() {
		t.Errorf("after cancel = %s paid %s", got.Status, got.AmountPaid)
	}
	in.Status = models.PaymentStatusCompleted
	if _, _, err := Update(f.ctx, f.user.ID, models.PaymentDirectionIn, p.ID, in); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("reopen cancelled payment: %v", err)
	}

	q, _, _ := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, in, "")
	if err := Delete(f.ctx, f.user.ID, models.PaymentDirectionIn, q.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusUnpaid {
		t.Errorf("after delete = %s", got.Status)
	}
}

func TestUndoDeleteRefreshesInvoice(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityPayment, AfterUndo)
	inv := f.invoice(t, "100", "")
	p, _, _ := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-05", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "25")}},
	}, "")
	if err := Delete(f.ctx, f.user.ID, models.PaymentDirectionIn, p.ID); err != nil {
		t.Fatal(err)
	}

	logs, _ := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityPayment, Action: models.AuditActionDelete})
	if _, err := audit.UndoLog(f.ctx, logs[0].ID, f.user.ID); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusPartiallyPaid || !got.AmountPaid.Equal(testutil.D(t, "25")) {
		t.Errorf("after undo = %s paid %s", got.Status, got.AmountPaid)
	}
}

func TestUndoDeleteCannotOverpayInvoice(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityPayment, AfterUndo)
	inv := f.invoice(t, "100", "")
	first, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-05", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "80")}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := Delete(f.ctx, f.user.ID, models.PaymentDirectionIn, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-06", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "100")}},
	}, ""); err != nil {
		t.Fatal(err)
	}

	logs, _ := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityPayment, Action: models.AuditActionDelete})
	if _, err := audit.UndoLog(f.ctx, logs[0].ID, f.user.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo that overpays: %v", err)
	}
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusPaid || !got.AmountPaid.Equal(testutil.D(t, "100")) {
		t.Errorf("invoice = %s paid %s", got.Status, got.AmountPaid)
	}
	var n int64
	database.DB.Model(&models.Payment{}).Where("id = ?", first.ID).Count(&n)
	if n != 0 {
		t.Error("payment restored despite conflict")
	}
}

func TestUndoDeleteNeedsIssuedInvoice(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityPayment, AfterUndo)
	inv := f.invoice(t, "100", "")
	p, _, err := Create(f.ctx, f.user.ID, models.PaymentDirectionIn, Input{
		PartyID: f.customer.ID, Date: "2024-01-05", Items: []ItemInput{{InvoiceID: inv.ID, Amount: testutil.D(t, "30")}},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := Delete(f.ctx, f.user.ID, models.PaymentDirectionIn, p.ID); err != nil {
		t.Fatal(err)
	}
	zero := decimal.Zero
	if _, err := invoice.Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, invoice.Input{
		PartyID: f.customer.ID, Date: "2024-01-01", Status: models.InvoiceStatusCancelled, TaxRate: &zero,
		Items: []invoice.ItemInput{{Description: "Service", Quantity: decimal.NewFromInt(1), UnitPrice: testutil.D(t, "100")}},
	}); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}

	logs, _ := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityPayment, Action: models.AuditActionDelete})
	if _, err := audit.UndoLog(f.ctx, logs[0].ID, f.user.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo onto cancelled invoice: %v", err)
	}
	if got := f.reload(t, inv.ID); got.Status != models.InvoiceStatusCancelled || !got.AmountPaid.IsZero() {
		t.Errorf("invoice = %s paid %s", got.Status, got.AmountPaid)
	}
}
