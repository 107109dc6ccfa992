// Package report turns categorized transactions into monthly and yearly
// figures: per-category matrices, monthly totals and rolling balances.
package report

import (
	"sort"
	"strings"

	"kewangan/internal/core"
	"kewangan/internal/period"
)

// CategoryRow is one category's amounts for January through December.
type CategoryRow struct {
	Name   string         `json:"name"`
	Months [12]core.Money `json:"months"`
	Total  core.Money     `json:"total"`
}

// YearAggregate holds every figure of one reporting year. Month arrays are
// indexed 0 for January through 11 for December.
type YearAggregate struct {
	Year          int            `json:"year"`
	Receipts      []CategoryRow  `json:"receipts"`
	Payments      []CategoryRow  `json:"payments"`
	ReceiptTotals [12]core.Money `json:"receipt_totals"`
	PaymentTotals [12]core.Money `json:"payment_totals"`
	Opening       [12]core.Money `json:"opening"`
	Closing       [12]core.Money `json:"closing"`
}

// ReceiptTotal is the year's receipts across all categories.
func (a YearAggregate) ReceiptTotal() core.Money {
	return sumMonths(a.ReceiptTotals)
}

// PaymentTotal is the year's payments across all categories.
func (a YearAggregate) PaymentTotal() core.Money {
	return sumMonths(a.PaymentTotals)
}

// Surplus is receipts minus payments of each month; negative is a deficit.
func (a YearAggregate) Surplus() [12]core.Money {
	var out [12]core.Money
	for i := range out {
		out[i] = a.ReceiptTotals[i].Sub(a.PaymentTotals[i])
	}
	return out
}

// Aggregator groups transactions into per-category matrices. Categories known
// to the taxonomy appear in taxonomy order, even with no amounts; categories
// only seen on transactions follow, sorted by name.
type Aggregator struct {
	order map[core.Direction][]string
}

// NewAggregator builds an aggregator ordered by the active top-level
// categories of each direction.
func NewAggregator(categories []core.Category) *Aggregator {
	top := make([]core.Category, 0, len(categories))
	for _, c := range categories {
		if c.Level == 0 && c.Active && c.Direction.Valid() && strings.TrimSpace(c.Name) != "" {
			top = append(top, c)
		}
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].SortOrder != top[j].SortOrder {
			return top[i].SortOrder < top[j].SortOrder
		}
		return top[i].Name < top[j].Name
	})

	order := map[core.Direction][]string{}
	seen := map[core.Direction]map[string]bool{core.Receipt: {}, core.Payment: {}}
	for _, c := range top {
		if seen[c.Direction][c.Name] {
			continue
		}
		seen[c.Direction][c.Name] = true
		order[c.Direction] = append(order[c.Direction], c.Name)
	}
	return &Aggregator{order: order}
}

// Aggregate computes the figures of year from txs, which must cover at least
// period.YearSpan(year). opening is the balance brought into January.
// Uncategorized transactions are left out.
func (g *Aggregator) Aggregate(year int, txs []core.Transaction, opening core.Money) YearAggregate {
	agg := YearAggregate{Year: year}
	cells := map[core.Direction]map[string]*CategoryRow{
		core.Receipt: {},
		core.Payment: {},
	}

	for m := 1; m <= 12; m++ {
		i := m - 1
		for _, tx := range period.WindowFor(year, m).Select(txs) {
			if !tx.IsClassified() {
				continue
			}
			dir := tx.Classification.Direction()
			name := tx.Classification.Category()
			row, ok := cells[dir][name]
			if !ok {
				row = &CategoryRow{Name: name}
				cells[dir][name] = row
			}
			amount := tx.Amount()
			row.Months[i] = row.Months[i].Add(amount)
			row.Total = row.Total.Add(amount)
			if dir == core.Receipt {
				agg.ReceiptTotals[i] = agg.ReceiptTotals[i].Add(amount)
			} else {
				agg.PaymentTotals[i] = agg.PaymentTotals[i].Add(amount)
			}
		}
	}

	agg.Receipts = g.rows(core.Receipt, cells[core.Receipt])
	agg.Payments = g.rows(core.Payment, cells[core.Payment])

	balance := opening
	for i := range 12 {
		agg.Opening[i] = balance
		balance = balance.Add(agg.ReceiptTotals[i]).Sub(agg.PaymentTotals[i])
		agg.Closing[i] = balance
	}
	return agg
}

func (g *Aggregator) rows(dir core.Direction, cells map[string]*CategoryRow) []CategoryRow {
	out := make([]CategoryRow, 0, len(cells)+len(g.order[dir]))
	for _, name := range g.order[dir] {
		if row, ok := cells[name]; ok {
			out = append(out, *row)
			delete(cells, name)
			continue
		}
		out = append(out, CategoryRow{Name: name})
	}

	rest := make([]string, 0, len(cells))
	for name := range cells {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, *cells[name])
	}
	return out
}

func sumMonths(months [12]core.Money) core.Money {
	var total core.Money
	for _, m := range months {
		total = total.Add(m)
	}
	return total
}
