// Package period resolves which reporting month a transaction counts toward.
//
// A transaction normally counts toward the calendar month of its date. Its
// period marker (bulan perkiraan) can carry it forward into the next month's
// report or back into the previous one. Every report that groups by month
// goes through WindowFor so monthly and yearly totals reconcile.
package period

import "kewangan/internal/core"

// Term is one of the three calendar-month slices of a reporting window: the
// transactions dated in Calendar whose effective marker is Marker.
type Term struct {
	Calendar core.YearMonth
	Marker   core.PeriodMarker
}

// Window is the set of transactions folded into one reporting month.
type Window struct {
	Month core.YearMonth
	// Own holds this month's this_month (and unset) entries.
	Own core.YearMonth
	// FromPrevious holds the previous month's next_month entries.
	FromPrevious core.YearMonth
	// FromNext holds the following month's prior_month entries.
	FromNext core.YearMonth
}

// WindowFor returns the window of the reporting month (year, month).
// Month arithmetic wraps the year.
func WindowFor(year, month int) Window {
	m := core.NewYearMonth(year, month)
	return Window{
		Month:        m,
		Own:          m,
		FromPrevious: m.Prev(),
		FromNext:     m.Next(),
	}
}

// Terms lists the three slices of the window.
func (w Window) Terms() [3]Term {
	return [3]Term{
		{Calendar: w.Own, Marker: core.PeriodThisMonth},
		{Calendar: w.FromPrevious, Marker: core.PeriodNextMonth},
		{Calendar: w.FromNext, Marker: core.PeriodPriorMonth},
	}
}

// Contains reports whether tx belongs to one of the window's terms.
func (w Window) Contains(tx core.Transaction) bool {
	cal := tx.CalendarMonth()
	marker := tx.PeriodMarker.Effective()
	for _, term := range w.Terms() {
		if term.Calendar == cal && term.Marker == marker {
			return true
		}
	}
	return false
}

// Select returns the transactions of txs that fall in the window, in input order.
func (w Window) Select(txs []core.Transaction) []core.Transaction {
	var out []core.Transaction
	for _, tx := range txs {
		if w.Contains(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// EffectiveMonth is the reporting month tx counts toward.
func EffectiveMonth(tx core.Transaction) core.YearMonth {
	return tx.CalendarMonth().AddMonths(tx.PeriodMarker.Offset())
}

// YearSpan is the inclusive calendar range that can contribute to any month
// of year: December of the previous year through January of the next.
func YearSpan(year int) (from, to core.YearMonth) {
	return core.YearMonth{Year: year - 1, Month: 12}, core.YearMonth{Year: year + 1, Month: 1}
}

// Years returns the reporting years a transaction can affect: the year of its
// calendar month and the year it is attributed to, deduplicated.
func Years(tx core.Transaction) []int {
	cal := tx.CalendarMonth().Year
	eff := EffectiveMonth(tx).Year
	if cal == eff {
		return []int{cal}
	}
	return []int{cal, eff}
}
