package dates

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	got, err := Parse("2024-02-29")
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != time.UTC || got.Hour() != 0 || got.Day() != 29 {
		t.Errorf("Parse = %v", got)
	}
	if _, err := Parse("29/02/2024"); err == nil {
		t.Error("expected error for wrong layout")
	}
	if p, err := ParseOptional(""); p != nil || err != nil {
		t.Errorf("ParseOptional(\"\") = %v, %v", p, err)
	}
}

func TestPeriodStarts(t *testing.T) {
	// Thursday
	d := time.Date(2024, 5, 16, 15, 30, 0, 0, time.UTC)
	if got := StartOfWeek(d); Format(got) != "2024-05-13" {
		t.Errorf("StartOfWeek = %s", Format(got))
	}
	sunday := time.Date(2024, 5, 19, 0, 0, 0, 0, time.UTC)
	if got := StartOfWeek(sunday); Format(got) != "2024-05-13" {
		t.Errorf("StartOfWeek(sunday) = %s", Format(got))
	}
	if got := StartOfMonth(d); Format(got) != "2024-05-01" {
		t.Errorf("StartOfMonth = %s", Format(got))
	}
}
