package report

import (
	"kewangan/internal/core"
	"kewangan/internal/period"
)

// OpeningBalance returns the balance brought into January of year.
//
// An explicit opening on the January statement of year wins. Otherwise the
// earliest recorded opening, or zero when none was ever recorded, is carried
// forward by the net categorized flow of every effective month before year.
func OpeningBalance(year int, statements []core.Statement, history []core.Transaction) core.Money {
	jan := core.YearMonth{Year: year, Month: 1}

	var (
		base     core.Money
		earliest core.YearMonth
		anchored bool
	)
	for _, s := range statements {
		if s.OpeningBalance == nil {
			continue
		}
		ym := s.YearMonth()
		if ym == jan {
			return *s.OpeningBalance
		}
		if !anchored || ym.Before(earliest) {
			base, earliest, anchored = *s.OpeningBalance, ym, true
		}
	}
	return base.Add(NetFlow(history, jan))
}

// NetFlow sums receipts minus payments of categorized transactions whose
// effective month is before the given month.
func NetFlow(txs []core.Transaction, before core.YearMonth) core.Money {
	var net core.Money
	for _, tx := range txs {
		if !tx.IsClassified() || !period.EffectiveMonth(tx).Before(before) {
			continue
		}
		switch tx.Classification.Direction() {
		case core.Receipt:
			net = net.Add(tx.Amount())
		case core.Payment:
			net = net.Sub(tx.Amount())
		}
	}
	return net
}
