package numbering

import (
	"testing"

	"defter-backend/internal/database"
	"defter-backend/internal/models"
	"defter-backend/internal/testutil"
)

func TestNext(t *testing.T) {
	testutil.SetupDB(t)
	series := Series{Model: &models.Invoice{}, TypeColumn: "type", TypeValue: string(models.InvoiceTypeSales), Prefix: "INV"}

	first, err := Next(database.DB, 1, series)
	if err != nil {
		t.Fatal(err)
	}
	if first != "INV-00001" {
		t.Fatalf("first = %s", first)
	}

	for _, n := range []string{"INV-00001", "INV-00007", "CUSTOM-9"} {
		database.DB.Create(&models.Invoice{UserID: 1, Type: models.InvoiceTypeSales, Number: n, PartyID: 1, Date: testutil.Date(2024, 1, 1), Status: models.InvoiceStatusUnpaid})
	}
	deleted := models.Invoice{UserID: 1, Type: models.InvoiceTypeSales, Number: "INV-00009", PartyID: 1, Date: testutil.Date(2024, 1, 1), Status: models.InvoiceStatusUnpaid}
	database.DB.Create(&deleted)
	database.DB.Delete(&deleted)
	// purchase invoices and other users have their own series
	database.DB.Create(&models.Invoice{UserID: 1, Type: models.InvoiceTypePurchase, Number: "INV-00050", PartyID: 1, Date: testutil.Date(2024, 1, 1), Status: models.InvoiceStatusUnpaid})
	database.DB.Create(&models.Invoice{UserID: 2, Type: models.InvoiceTypeSales, Number: "INV-00070", PartyID: 1, Date: testutil.Date(2024, 1, 1), Status: models.InvoiceStatusUnpaid})

	next, _ := Next(database.DB, 1, series)
	if next != "INV-00010" {
		t.Errorf("next = %s, want INV-00010", next)
	}

	taken, _ := Taken(database.DB, 1, series, "INV-00009", 0)
	if !taken {
		t.Error("number of a deleted invoice reported free")
	}
	taken, _ = Taken(database.DB, 1, series, "INV-00001", 0)
	if !taken {
		t.Error("INV-00001 reported free")
	}
	free, _ := Taken(database.DB, 2, series, "INV-00001", 0)
	if free {
		t.Error("numbers leak across users")
	}
}
