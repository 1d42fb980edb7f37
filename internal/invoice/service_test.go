package invoice

import (
	"context"
	"errors"
	"testing"

	"defter-backend/internal/apperr"
	"defter-backend/internal/audit"
	"defter-backend/internal/company"
	"defter-backend/internal/database"
	"defter-backend/internal/listing"
	"defter-backend/internal/models"
	"defter-backend/internal/party"
	"defter-backend/internal/testutil"

	"github.com/shopspring/decimal"
)

type fixture struct {
	ctx      context.Context
	user     models.User
	customer models.Party
	vendor   models.Party
}

func setup(t *testing.T) fixture {
	t.Helper()
	testutil.SetupDB(t)
	user := testutil.SeedUser(t, "a@test.com")
	return fixture{
		ctx:      context.Background(),
		user:     user,
		customer: testutil.SeedParty(t, user.ID, models.PartyKindCustomer, "Acme Corp"),
		vendor:   testutil.SeedParty(t, user.ID, models.PartyKindVendor, "Paper Supplies"),
	}
}

func rate(t *testing.T, s string) *decimal.Decimal {
	d := testutil.D(t, s)
	return &d
}

func items(t *testing.T, pairs ...string) []ItemInput {
	var out []ItemInput
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, ItemInput{Description: "Line", Quantity: testutil.D(t, pairs[i]), UnitPrice: testutil.D(t, pairs[i+1])})
	}
	return out
}

func TestCreateComputesTotals(t *testing.T) {
	f := setup(t)
	inv, err := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID,
		Date:    "2024-03-01",
		DueDate: "2999-01-01",
		TaxRate: rate(t, "10"),
		Items:   items(t, "3", "19.99", "1", "0.333"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 59.97 + 0.33 = 60.30; tax 6.03
	if !inv.Subtotal.Equal(testutil.D(t, "60.30")) || !inv.TaxAmount.Equal(testutil.D(t, "6.03")) {
		t.Errorf("subtotal %s tax %s", inv.Subtotal, inv.TaxAmount)
	}
	if !inv.Total.Equal(inv.Subtotal.Add(inv.TaxAmount)) {
		t.Errorf("total %s != subtotal + tax", inv.Total)
	}
	sum := decimal.Zero
	for _, it := range inv.Items {
		sum = sum.Add(it.LineTotal)
	}
	if !sum.Equal(inv.Subtotal) {
		t.Errorf("line totals sum %s != subtotal %s", sum, inv.Subtotal)
	}
	if inv.Number != "INV-00001" || inv.Status != models.InvoiceStatusUnpaid {
		t.Errorf("number %s status %s", inv.Number, inv.Status)
	}
	if inv.Party == nil || inv.Party.Name != "Acme Corp" {
		t.Error("party not preloaded")
	}
}

func TestCreateUsesCompanyTaxRate(t *testing.T) {
	f := setup(t)
	if _, err := company.Update(f.ctx, f.user.ID, company.Input{Name: "Co", DefaultTaxRate: rate(t, "20")}); err != nil {
		t.Fatal(err)
	}
	inv, err := Create(f.ctx, f.user.ID, models.InvoiceTypePurchase, Input{
		PartyID: f.vendor.ID, Date: "2024-03-01", Items: items(t, "1", "100"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !inv.TaxAmount.Equal(testutil.D(t, "20")) || inv.Number != "BILL-00001" {
		t.Errorf("tax %s number %s", inv.TaxAmount, inv.Number)
	}
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	base := func() Input {
		return Input{PartyID: f.customer.ID, Date: "2024-03-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10")}
	}
	tests := []struct {
		name  string
		typ   models.InvoiceType
		mod   func(*Input)
		field string
	}{
		{"vendor on sales invoice", models.InvoiceTypeSales, func(in *Input) { in.PartyID = f.vendor.ID }, "party_id"},
		{"customer on purchase invoice", models.InvoiceTypePurchase, func(in *Input) {}, "party_id"},
		{"bad date", models.InvoiceTypeSales, func(in *Input) { in.Date = "03/01/2024" }, "date"},
		{"due before date", models.InvoiceTypeSales, func(in *Input) { in.DueDate = "2024-02-01" }, "due_date"},
		{"no items", models.InvoiceTypeSales, func(in *Input) { in.Items = nil }, "items"},
		{"zero quantity", models.InvoiceTypeSales, func(in *Input) { in.Items = items(t, "0", "10") }, "items[0].quantity"},
		{"derived status", models.InvoiceTypeSales, func(in *Input) { in.Status = models.InvoiceStatusPaid }, "status"},
		{"unknown status", models.InvoiceTypeSales, func(in *Input) { in.Status = "archived" }, "status"},
		{"bad rate", models.InvoiceTypeSales, func(in *Input) { in.TaxRate = rate(t, "-5") }, "tax_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mod(&in)
			_, err := Create(f.ctx, f.user.ID, tt.typ, in)
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Field != tt.field {
				t.Fatalf("err = %v, want invalid %s", err, tt.field)
			}
		})
	}
}

func TestNumbersAreUniquePerType(t *testing.T) {
	f := setup(t)
	in := Input{Number: "A-1", PartyID: f.customer.ID, Date: "2024-03-01", TaxRate: rate(t, "0"), Items: items(t, "1", "1")}
	if _, err := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, in); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, in); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("duplicate number: %v", err)
	}
	in.PartyID = f.vendor.ID
	if _, err := Create(f.ctx, f.user.ID, models.InvoiceTypePurchase, in); err != nil {
		t.Errorf("same number on purchase invoice: %v", err)
	}
}

func TestListFilterSortSearch(t *testing.T) {
	f := setup(t)
	other := testutil.SeedParty(t, f.user.ID, models.PartyKindCustomer, "Zeta Ltd")
	create := func(partyID uint, date, price string, status models.InvoiceStatus) {
		t.Helper()
		if _, err := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
			PartyID: partyID, Date: date, Status: status, TaxRate: rate(t, "0"), Items: items(t, "1", price),
		}); err != nil {
			t.Fatal(err)
		}
	}
	create(f.customer.ID, "2024-01-10", "300", "")
	create(f.customer.ID, "2024-02-10", "100", models.InvoiceStatusDraft)
	create(other.ID, "2024-03-10", "200", "")
	create(other.ID, "2024-04-10", "50", models.InvoiceStatusDraft)

	drafts, err := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{Status: "draft"})
	if err != nil {
		t.Fatal(err)
	}
	if len(drafts) != 2 {
		t.Fatalf("drafts = %d", len(drafts))
	}
	for _, d := range drafts {
		if d.Status != models.InvoiceStatusDraft {
			t.Errorf("status filter returned %s", d.Status)
		}
	}

	byAmount, _ := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{Sort: "amount", Desc: true})
	for i := 1; i < len(byAmount); i++ {
		if byAmount[i-1].Total.LessThan(byAmount[i].Total) {
			t.Fatalf("amount desc not non-increasing: %s then %s", byAmount[i-1].Total, byAmount[i].Total)
		}
	}

	zeta, _ := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{Search: "zETA"})
	if len(zeta) != 2 {
		t.Errorf("search by party name = %d rows", len(zeta))
	}

	from, to := testutil.Date(2024, 2, 1), testutil.Date(2024, 3, 10)
	ranged, _ := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{From: &from, To: &to})
	if len(ranged) != 2 {
		t.Errorf("date range = %d rows, want 2", len(ranged))
	}

	if _, err := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{Status: "lost"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown status filter: %v", err)
	}
}

func TestOverdueSweep(t *testing.T) {
	f := setup(t)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2020-01-01", DueDate: "2999-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10"),
	})
	// due date passes
	database.DB.Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("due_date", testutil.Date(2020, 2, 1))

	list, _ := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{Status: "overdue"})
	if len(list) != 1 || list[0].ID != inv.ID {
		t.Fatalf("overdue list = %+v", list)
	}
}

func TestDeleteAndUndo(t *testing.T) {
	f := setup(t)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "2", "5"),
	})
	if err := Delete(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ := List(f.ctx, f.user.ID, models.InvoiceTypeSales, listing.Query{})
	if len(list) != 0 {
		t.Fatal("deleted invoice still listed")
	}

	audit.OnUndo(models.EntityInvoice, AfterUndo)
	logs, _ := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityInvoice, Action: models.AuditActionDelete})
	if _, err := audit.UndoLog(f.ctx, logs[0].ID, f.user.ID); err != nil {
		t.Fatalf("undo delete: %v", err)
	}
	got, err := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID)
	if err != nil {
		t.Fatalf("restored invoice: %v", err)
	}
	if len(got.Items) != 1 || !got.Total.Equal(testutil.D(t, "10")) {
		t.Errorf("restored = %+v", got)
	}
}

func TestUpdateAndUndoRestoresItems(t *testing.T) {
	f := setup(t)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10", "2", "5"),
	})
	updated, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, Input{
		PartyID: f.customer.ID, Date: "2024-01-02", TaxRate: rate(t, "0"), Items: items(t, "1", "99"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Number != inv.Number || len(updated.Items) != 1 || !updated.Total.Equal(testutil.D(t, "99")) {
		t.Fatalf("updated = %+v", updated)
	}

	logs, _ := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityInvoice, Action: models.AuditActionUpdate})
	if _, err := audit.UndoLog(f.ctx, logs[0].ID, f.user.ID); err != nil {
		t.Fatalf("undo update: %v", err)
	}
	got, _ := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID)
	if len(got.Items) != 2 || !got.Total.Equal(testutil.D(t, "20")) {
		t.Errorf("after undo = %d items, total %s", len(got.Items), got.Total)
	}
}

func TestCancelledIsFinal(t *testing.T) {
	f := setup(t)
	in := Input{PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10")}
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, in)

	in.Status = models.InvoiceStatusCancelled
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, in); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	in.Status = models.InvoiceStatusUnpaid
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, in); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("reopen cancelled: %v", err)
	}
}

func TestRefreshStatuses(t *testing.T) {
	f := setup(t)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", DueDate: "2999-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "100"),
	})
	pay := func(amount string, status models.PaymentStatus) {
		p := models.Payment{UserID: f.user.ID, Direction: models.PaymentDirectionIn, Number: "P" + amount, PartyID: f.customer.ID,
			Date: testutil.Date(2024, 1, 2), Amount: testutil.D(t, amount), Method: models.PaymentMethodCash, Status: status,
			Items: []models.PaymentItem{{InvoiceID: inv.ID, Amount: testutil.D(t, amount)}}}
		database.DB.Create(&p)
	}
	status := func() models.Invoice {
		if err := RefreshStatuses(database.DB, f.user.ID, []uint{inv.ID}); err != nil {
			t.Fatal(err)
		}
		var got models.Invoice
		database.DB.First(&got, inv.ID)
		return got
	}

	pay("30", models.PaymentStatusPending)
	if got := status(); got.Status != models.InvoiceStatusUnpaid || !got.AmountPaid.IsZero() {
		t.Errorf("pending payment counted: %s %s", got.Status, got.AmountPaid)
	}
	pay("40", models.PaymentStatusCompleted)
	if got := status(); got.Status != models.InvoiceStatusPartiallyPaid {
		t.Errorf("status = %s, want partially_paid", got.Status)
	}
	pay("60", models.PaymentStatusCompleted)
	if got := status(); got.Status != models.InvoiceStatusPaid || !got.AmountPaid.Equal(testutil.D(t, "100")) {
		t.Errorf("status = %s paid %s", got.Status, got.AmountPaid)
	}
}

func (f fixture) pay(t *testing.T, partyID, invoiceID uint, amount string) {
	t.Helper()
	p := models.Payment{UserID: f.user.ID, Direction: models.PaymentDirectionIn, Number: "P" + amount, PartyID: partyID,
		Date: testutil.Date(2024, 1, 2), Amount: testutil.D(t, amount), Method: models.PaymentMethodCash, Status: models.PaymentStatusCompleted,
		Items: []models.PaymentItem{{InvoiceID: invoiceID, Amount: testutil.D(t, amount)}}}
	if err := database.DB.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
	if err := RefreshStatuses(database.DB, f.user.ID, []uint{invoiceID}); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) undoLatest(id uint, action models.AuditAction) error {
	logs, err := audit.List(f.ctx, f.user.ID, audit.ListFilter{EntityType: models.EntityInvoice, EntityID: id, Action: action})
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return errors.New("no audit entry")
	}
	_, err = audit.UndoLog(f.ctx, logs[0].ID, f.user.ID)
	return err
}

func TestPartyIsFixedOncePaid(t *testing.T) {
	f := setup(t)
	other := testutil.SeedParty(t, f.user.ID, models.PartyKindCustomer, "Zeta Ltd")
	in := Input{PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "100")}
	paid, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, in)
	open, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, in)
	f.pay(t, f.customer.ID, paid.ID, "40")

	in.PartyID = other.ID
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, paid.ID, in); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("move paid invoice to another party: %v", err)
	}
	if got, _ := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, paid.ID); got.PartyID != f.customer.ID {
		t.Errorf("party = %d, want %d", got.PartyID, f.customer.ID)
	}
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, open.ID, in); err != nil {
		t.Errorf("move unpaid invoice: %v", err)
	}
}

func TestUndoUpdateKeepsReturnedLines(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityInvoice, AfterUndo)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "10", "1"),
	})
	updated, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "20", "1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	line := updated.Items[0]
	ret := models.Return{UserID: f.user.ID, Type: models.ReturnTypeSales, Number: "SR-1", InvoiceID: inv.ID, PartyID: f.customer.ID,
		Date: testutil.Date(2024, 1, 3), Status: models.ReturnStatusCompleted, Subtotal: testutil.D(t, "12"), Total: testutil.D(t, "12"),
		Items: []models.ReturnItem{{InvoiceItemID: line.ID, Description: "Line", Quantity: testutil.D(t, "12"), UnitPrice: testutil.D(t, "1"), LineTotal: testutil.D(t, "12")}}}
	if err := database.DB.Create(&ret).Error; err != nil {
		t.Fatal(err)
	}

	if err := f.undoLatest(inv.ID, models.AuditActionUpdate); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo update under a return: %v", err)
	}
	got, _ := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID)
	if len(got.Items) != 1 || got.Items[0].ID != line.ID || !got.Items[0].Quantity.Equal(testutil.D(t, "20")) {
		t.Errorf("lines after refused undo = %+v", got.Items)
	}
}

func TestUndoUpdateKeepsTotalAbovePayments(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityInvoice, AfterUndo)
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10"),
	})
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "100"),
	}); err != nil {
		t.Fatal(err)
	}
	f.pay(t, f.customer.ID, inv.ID, "80")

	if err := f.undoLatest(inv.ID, models.AuditActionUpdate); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo below amount paid: %v", err)
	}
	got, _ := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID)
	if !got.Total.Equal(testutil.D(t, "100")) || !got.AmountPaid.Equal(testutil.D(t, "80")) {
		t.Errorf("total %s paid %s", got.Total, got.AmountPaid)
	}
}

func TestUndoUpdateKeepsPaymentParty(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityInvoice, AfterUndo)
	other := testutil.SeedParty(t, f.user.ID, models.PartyKindCustomer, "Zeta Ltd")
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: f.customer.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "100"),
	})
	if _, err := Update(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID, Input{
		PartyID: other.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "100"),
	}); err != nil {
		t.Fatal(err)
	}
	f.pay(t, other.ID, inv.ID, "50")

	if err := f.undoLatest(inv.ID, models.AuditActionUpdate); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo back to the first party: %v", err)
	}
	if got, _ := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID); got.PartyID != other.ID {
		t.Errorf("party = %d, want %d", got.PartyID, other.ID)
	}
}

func TestUndoDeleteNeedsLiveParty(t *testing.T) {
	f := setup(t)
	audit.OnUndo(models.EntityInvoice, AfterUndo)
	other := testutil.SeedParty(t, f.user.ID, models.PartyKindCustomer, "Zeta Ltd")
	inv, _ := Create(f.ctx, f.user.ID, models.InvoiceTypeSales, Input{
		PartyID: other.ID, Date: "2024-01-01", TaxRate: rate(t, "0"), Items: items(t, "1", "10"),
	})
	if err := Delete(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID); err != nil {
		t.Fatal(err)
	}
	if err := party.Delete(f.ctx, f.user.ID, models.PartyKindCustomer, other.ID); err != nil {
		t.Fatalf("delete party: %v", err)
	}

	if err := f.undoLatest(inv.ID, models.AuditActionDelete); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("undo onto deleted party: %v", err)
	}
	if _, err := Get(f.ctx, f.user.ID, models.InvoiceTypeSales, inv.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("invoice restored: %v", err)
	}
}
