package period

import (
	"testing"

	"kewangan/internal/core"
)

func tx(y, m, d int, marker core.PeriodMarker) core.Transaction {
	return core.Transaction{Date: core.NewDate(y, m, d), Credit: core.Money{Cents: 100}, PeriodMarker: marker}
}

func TestWindowFor(t *testing.T) {
	w := WindowFor(2024, 3)
	if w.Own != (core.YearMonth{Year: 2024, Month: 3}) ||
		w.FromPrevious != (core.YearMonth{Year: 2024, Month: 2}) ||
		w.FromNext != (core.YearMonth{Year: 2024, Month: 4}) {
		t.Fatalf("unexpected window %+v", w)
	}
}

func TestWindowForWrapsYear(t *testing.T) {
	jan := WindowFor(2024, 1)
	if jan.FromPrevious != (core.YearMonth{Year: 2023, Month: 12}) {
		t.Fatalf("January should pull from December of the prior year, got %v", jan.FromPrevious)
	}
	dec := WindowFor(2024, 12)
	if dec.FromNext != (core.YearMonth{Year: 2025, Month: 1}) {
		t.Fatalf("December should pull from January of the next year, got %v", dec.FromNext)
	}
}

func TestWindowContains(t *testing.T) {
	feb := WindowFor(2024, 2)
	tests := []struct {
		name string
		tx   core.Transaction
		want bool
	}{
		{"own month unset", tx(2024, 2, 10, core.PeriodUnset), true},
		{"own month this_month", tx(2024, 2, 10, core.PeriodThisMonth), true},
		{"own month carried out forward", tx(2024, 2, 28, core.PeriodNextMonth), false},
		{"own month carried out backward", tx(2024, 2, 1, core.PeriodPriorMonth), false},
		{"jan 31 carried forward", tx(2024, 1, 31, core.PeriodNextMonth), true},
		{"jan not carried", tx(2024, 1, 31, core.PeriodUnset), false},
		{"mar 1 carried back", tx(2024, 3, 1, core.PeriodPriorMonth), true},
		{"mar carried forward", tx(2024, 3, 1, core.PeriodNextMonth), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := feb.Contains(tt.tx); got != tt.want {
				t.Errorf("Contains() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEffectiveMonth(t *testing.T) {
	tests := []struct {
		name string
		tx   core.Transaction
		want core.YearMonth
	}{
		{"jan 31 next_month lands in february", tx(2024, 1, 31, core.PeriodNextMonth), core.YearMonth{Year: 2024, Month: 2}},
		{"feb 1 prior_month lands in january", tx(2024, 2, 1, core.PeriodPriorMonth), core.YearMonth{Year: 2024, Month: 1}},
		{"december next_month wraps", tx(2024, 12, 31, core.PeriodNextMonth), core.YearMonth{Year: 2025, Month: 1}},
		{"january prior_month wraps", tx(2024, 1, 2, core.PeriodPriorMonth), core.YearMonth{Year: 2023, Month: 12}},
		{"unset stays", tx(2024, 6, 15, core.PeriodUnset), core.YearMonth{Year: 2024, Month: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveMonth(tt.tx); got != tt.want {
				t.Errorf("EffectiveMonth() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Every transaction lands in exactly one window, the one of its effective month.
func TestWindowsPartitionTransactions(t *testing.T) {
	markers := []core.PeriodMarker{core.PeriodUnset, core.PeriodThisMonth, core.PeriodNextMonth, core.PeriodPriorMonth}
	for m := 1; m <= 12; m++ {
		for _, marker := range markers {
			for _, day := range []int{1, 15, 28} {
				x := tx(2024, m, day, marker)
				hits := 0
				var hit core.YearMonth
				for y := 2023; y <= 2025; y++ {
					for rm := 1; rm <= 12; rm++ {
						if w := WindowFor(y, rm); w.Contains(x) {
							hits++
							hit = w.Month
						}
					}
				}
				if hits != 1 {
					t.Fatalf("%v %v: in %d windows", x.Date, marker, hits)
				}
				if hit != EffectiveMonth(x) {
					t.Fatalf("%v %v: window %v, effective %v", x.Date, marker, hit, EffectiveMonth(x))
				}
			}
		}
	}
}

func TestYearSpanAndYears(t *testing.T) {
	from, to := YearSpan(2024)
	if from != (core.YearMonth{Year: 2023, Month: 12}) || to != (core.YearMonth{Year: 2025, Month: 1}) {
		t.Fatalf("YearSpan = %v..%v", from, to)
	}
	if ys := Years(tx(2024, 12, 31, core.PeriodNextMonth)); len(ys) != 2 || ys[0] != 2024 || ys[1] != 2025 {
		t.Fatalf("Years = %v", ys)
	}
	if ys := Years(tx(2024, 6, 1, core.PeriodUnset)); len(ys) != 1 || ys[0] != 2024 {
		t.Fatalf("Years = %v", ys)
	}
}

func TestSelect(t *testing.T) {
	txs := []core.Transaction{
		tx(2024, 1, 31, core.PeriodNextMonth),
		tx(2024, 2, 1, core.PeriodPriorMonth),
		tx(2024, 2, 14, core.PeriodUnset),
	}
	got := WindowFor(2024, 2).Select(txs)
	if len(got) != 2 || got[0].Date != txs[0].Date || got[1].Date != txs[2].Date {
		t.Fatalf("unexpected selection %+v", got)
	}
}
