package report

import "kewangan/internal/core"

// NotaRows flattens agg into auto-generated nota rows, one per non-zero
// (month, direction, category) cell, receipts first.
func NotaRows(agg YearAggregate) []core.NotaRow {
	var out []core.NotaRow
	appendRows := func(dir core.Direction, rows []CategoryRow) {
		for m := 1; m <= 12; m++ {
			for _, r := range rows {
				amount := r.Months[m-1]
				if amount.IsZero() {
					continue
				}
				out = append(out, core.NotaRow{
					Year:      agg.Year,
					Month:     m,
					Direction: dir,
					Category:  r.Name,
					Amount:    amount,
					Auto:      true,
				})
			}
		}
	}
	appendRows(core.Receipt, agg.Receipts)
	appendRows(core.Payment, agg.Payments)
	return out
}
