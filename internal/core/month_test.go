package core

import "testing"

func TestYearMonthAddMonthsWrapsYear(t *testing.T) {
	tests := []struct {
		name string
		from YearMonth
		n    int
		want YearMonth
	}{
		{"december next", YearMonth{2024, 12}, 1, YearMonth{2025, 1}},
		{"january prev", YearMonth{2024, 1}, -1, YearMonth{2023, 12}},
		{"same month", YearMonth{2024, 6}, 0, YearMonth{2024, 6}},
		{"two years back", YearMonth{2024, 3}, -24, YearMonth{2022, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.AddMonths(tt.n); got != tt.want {
				t.Errorf("AddMonths(%d) = %v, want %v", tt.n, got, tt.want)
			}
		})
	}
}

func TestNewYearMonthNormalizes(t *testing.T) {
	if got := NewYearMonth(2024, 13); got != (YearMonth{2025, 1}) {
		t.Fatalf("got %v", got)
	}
	if got := NewYearMonth(2024, 0); got != (YearMonth{2023, 12}) {
		t.Fatalf("got %v", got)
	}
}

func TestYearMonthOrdering(t *testing.T) {
	a, b := YearMonth{2023, 12}, YearMonth{2024, 1}
	if !a.Before(b) || !b.After(a) {
		t.Fatalf("%v should be before %v", a, b)
	}
	if a.String() != "2023-12" {
		t.Fatalf("String() = %q", a.String())
	}
}
