package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParsePeriodMarker(t *testing.T) {
	cases := []struct {
		in   string
		want PeriodMarker
		ok   bool
	}{
		{"", PeriodUnset, true},
		{"this_month", PeriodThisMonth, true},
		{"bulan_semasa", PeriodThisMonth, true},
		{"next_month", PeriodNextMonth, true},
		{"BULAN_DEPAN", PeriodNextMonth, true},
		{"prior_month", PeriodPriorMonth, true},
		{"bulan_lepas", PeriodPriorMonth, true},
		{"sometime", PeriodUnset, false},
	}
	for _, tc := range cases {
		got, err := ParsePeriodMarker(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %v err=%v, want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidMarker) {
			t.Fatalf("%q: expected ErrInvalidMarker, got %v", tc.in, err)
		}
	}
}

func TestPeriodMarkerUnsetEqualsThisMonth(t *testing.T) {
	if PeriodUnset.Effective() != PeriodThisMonth {
		t.Fatalf("unset must resolve to this_month")
	}
	if PeriodUnset.Offset() != PeriodThisMonth.Offset() {
		t.Fatalf("unset and this_month must share an offset")
	}
	if PeriodNextMonth.Offset() != 1 || PeriodPriorMonth.Offset() != -1 {
		t.Fatalf("unexpected offsets")
	}
}

func TestTransactionFlowDirection(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want Direction
	}{
		{"credit infers receipt", Transaction{Credit: Money{Cents: 100}}, Receipt},
		{"debit infers payment", Transaction{Debit: Money{Cents: 100}}, Payment},
		{"flag wins over amounts", Transaction{Credit: Money{Cents: 100}, Direction: Payment}, Payment},
		{"nothing to infer", Transaction{}, DirectionUnset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tx.FlowDirection(); got != tt.want {
				t.Errorf("FlowDirection() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{Date: NewDate(2024, 3, 1), Credit: Money{Cents: 100}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	both := good
	both.Debit = Money{Cents: 5}
	if !errors.Is(both.Validate(), ErrBothAmounts) {
		t.Fatalf("expected ErrBothAmounts")
	}

	negative := good
	negative.Credit = Money{Cents: -1}
	if !errors.Is(negative.Validate(), ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount")
	}
}

func TestClassifyClearsOtherDirection(t *testing.T) {
	tx := Transaction{Date: NewDate(2024, 3, 1), Debit: Money{Cents: 500}}
	tx.Classify(PaymentClass("Utiliti", "Elektrik", "TNB"), Provenance{Actor: "bendahari"})
	if tx.Direction != Payment {
		t.Fatalf("direction = %q, want payment", tx.Direction)
	}

	tx.Classify(ReceiptClass("Sumbangan Am", ""), Provenance{Auto: true, Actor: ActorAuto})
	cols := tx.Classification.Columns()
	if cols.PaymentCategory != nil || cols.PaymentSub1 != nil || cols.PaymentSub2 != nil {
		t.Fatalf("payment columns must be cleared, got %+v", cols)
	}
	if cols.ReceiptCategory == nil || *cols.ReceiptCategory != "Sumbangan Am" {
		t.Fatalf("receipt category not set: %+v", cols)
	}
	if tx.Direction != Receipt {
		t.Fatalf("direction = %q, want receipt", tx.Direction)
	}
}

func TestClassificationFromColumns(t *testing.T) {
	r, p := "Derma", "Utiliti"
	if _, err := ClassificationFromColumns(Columns{ReceiptCategory: &r, PaymentCategory: &p}); !errors.Is(err, ErrConflictingFields) {
		t.Fatalf("expected ErrConflictingFields, got %v", err)
	}

	c, err := ClassificationFromColumns(Columns{PaymentCategory: &p})
	if err != nil || c.Direction() != Payment || c.Category() != "Utiliti" {
		t.Fatalf("unexpected classification %+v err=%v", c, err)
	}

	c, err = ClassificationFromColumns(Columns{})
	if err != nil || c.IsClassified() {
		t.Fatalf("empty columns should be unclassified")
	}
}

func TestNewClassification(t *testing.T) {
	if _, err := NewClassification(Receipt, "Derma", "Jumaat", "extra"); !IsValidation(err) {
		t.Fatalf("receipt with second sub level must be a validation error, got %v", err)
	}
	if _, err := NewClassification(DirectionUnset, "Derma", "", ""); !IsValidation(err) {
		t.Fatalf("missing direction must be a validation error, got %v", err)
	}
	if _, err := NewClassification(Payment, " ", "", ""); !IsValidation(err) {
		t.Fatalf("empty category must be a validation error, got %v", err)
	}
	c, err := NewClassification(Payment, "Penyelenggaraan", "Bangunan", "Bumbung")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.SubCategory2() != "Bumbung" {
		t.Fatalf("second level lost: %+v", c)
	}
}

func TestClassificationJSON(t *testing.T) {
	c := PaymentClass("Utiliti", "Air", "")
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Classification
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != c {
		t.Fatalf("got %+v, want %+v", back, c)
	}
}

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		c  Category
		ok bool
	}{
		{Category{Direction: Receipt, Name: "Derma"}, true},
		{Category{Direction: Receipt, Name: "Jumaat", Parent: "Derma", Level: 1}, true},
		{Category{Direction: Receipt, Name: "X", Parent: "Jumaat", Level: 2}, false},
		{Category{Direction: Payment, Name: "Bumbung", Parent: "Bangunan", Level: 2}, true},
		{Category{Direction: Payment, Name: "Orphan", Level: 1}, false},
		{Category{Direction: "", Name: "Derma"}, false},
	}
	for i, tc := range cases {
		err := tc.c.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
