package report

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"kewangan/internal/core"
)

// NoCategory stands in for the highest category of an empty matrix.
const NoCategory = "-"

var monthLabels = [12]string{
	"Januari", "Februari", "Mac", "April", "Mei", "Jun",
	"Julai", "Ogos", "September", "Oktober", "November", "Disember",
}

// MonthLabels returns the Malay month names, January first.
func MonthLabels() [12]string {
	return monthLabels
}

// MonthLabel returns the Malay name of month 1..12, or "" when out of range.
func MonthLabel(month int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return monthLabels[month-1]
}

// Percentage returns part as a share of total with two decimals, or "0" when
// total is zero.
func Percentage(part, total core.Money) string {
	if total.IsZero() {
		return "0"
	}
	return part.Decimal().Mul(decimal.NewFromInt(100)).Div(total.Decimal()).StringFixed(2)
}

// Highest returns the name of the row with the largest total. Ties keep the
// input order. NoCategory is returned when no row has a positive total.
func Highest(rows []CategoryRow) string {
	if len(rows) == 0 {
		return NoCategory
	}
	sorted := make([]CategoryRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total.Cents > sorted[j].Total.Cents
	})
	if sorted[0].Total.Cents <= 0 {
		return NoCategory
	}
	return sorted[0].Name
}

// Share is one category's amount within a total.
type Share struct {
	Name    string     `json:"name"`
	Amount  core.Money `json:"amount"`
	Percent string     `json:"percent"`
}

// YearlyReport is the twelve-month view of one year.
type YearlyReport struct {
	Year           int            `json:"year"`
	MonthLabels    [12]string     `json:"month_labels"`
	Receipts       []CategoryRow  `json:"receipts"`
	Payments       []CategoryRow  `json:"payments"`
	ReceiptShares  []Share        `json:"receipt_shares"`
	PaymentShares  []Share        `json:"payment_shares"`
	ReceiptTotals  [12]core.Money `json:"receipt_totals"`
	PaymentTotals  [12]core.Money `json:"payment_totals"`
	Surplus        [12]core.Money `json:"surplus"`
	Opening        [12]core.Money `json:"opening"`
	Closing        [12]core.Money `json:"closing"`
	ReceiptTotal   core.Money     `json:"receipt_total"`
	PaymentTotal   core.Money     `json:"payment_total"`
	HighestReceipt string         `json:"highest_receipt"`
	HighestPayment string         `json:"highest_payment"`
}

// MonthlyReport is one month's slice of a year.
type MonthlyReport struct {
	Year           int        `json:"year"`
	Month          int        `json:"month"`
	Label          string     `json:"label"`
	Receipts       []Share    `json:"receipts"`
	Payments       []Share    `json:"payments"`
	ReceiptTotal   core.Money `json:"receipt_total"`
	PaymentTotal   core.Money `json:"payment_total"`
	Surplus        core.Money `json:"surplus"`
	Opening        core.Money `json:"opening"`
	Closing        core.Money `json:"closing"`
	HighestReceipt string     `json:"highest_receipt"`
	HighestPayment string     `json:"highest_payment"`
}

// BuildYearly shapes agg into the yearly report.
func BuildYearly(agg YearAggregate) YearlyReport {
	receiptTotal, paymentTotal := agg.ReceiptTotal(), agg.PaymentTotal()
	return YearlyReport{
		Year:           agg.Year,
		MonthLabels:    MonthLabels(),
		Receipts:       agg.Receipts,
		Payments:       agg.Payments,
		ReceiptShares:  shares(agg.Receipts, receiptTotal, func(r CategoryRow) core.Money { return r.Total }),
		PaymentShares:  shares(agg.Payments, paymentTotal, func(r CategoryRow) core.Money { return r.Total }),
		ReceiptTotals:  agg.ReceiptTotals,
		PaymentTotals:  agg.PaymentTotals,
		Surplus:        agg.Surplus(),
		Opening:        agg.Opening,
		Closing:        agg.Closing,
		ReceiptTotal:   receiptTotal,
		PaymentTotal:   paymentTotal,
		HighestReceipt: Highest(agg.Receipts),
		HighestPayment: Highest(agg.Payments),
	}
}

// BuildMonthly shapes month 1..12 of agg into a monthly report.
func BuildMonthly(agg YearAggregate, month int) (MonthlyReport, error) {
	if month < 1 || month > 12 {
		return MonthlyReport{}, core.NewValidationError("month", fmt.Sprintf("must be between 1 and 12, got %d", month))
	}
	i := month - 1
	cell := func(r CategoryRow) core.Money { return r.Months[i] }

	receipts := monthRows(agg.Receipts, i)
	payments := monthRows(agg.Payments, i)
	return MonthlyReport{
		Year:           agg.Year,
		Month:          month,
		Label:          MonthLabel(month),
		Receipts:       shares(agg.Receipts, agg.ReceiptTotals[i], cell),
		Payments:       shares(agg.Payments, agg.PaymentTotals[i], cell),
		ReceiptTotal:   agg.ReceiptTotals[i],
		PaymentTotal:   agg.PaymentTotals[i],
		Surplus:        agg.ReceiptTotals[i].Sub(agg.PaymentTotals[i]),
		Opening:        agg.Opening[i],
		Closing:        agg.Closing[i],
		HighestReceipt: Highest(receipts),
		HighestPayment: Highest(payments),
	}, nil
}

// monthRows projects the matrix onto one month, keeping only non-zero rows.
func monthRows(rows []CategoryRow, i int) []CategoryRow {
	var out []CategoryRow
	for _, r := range rows {
		if r.Months[i].IsZero() {
			continue
		}
		out = append(out, CategoryRow{Name: r.Name, Total: r.Months[i]})
	}
	return out
}

func shares(rows []CategoryRow, total core.Money, amount func(CategoryRow) core.Money) []Share {
	out := make([]Share, 0, len(rows))
	for _, r := range rows {
		a := amount(r)
		out = append(out, Share{Name: r.Name, Amount: a, Percent: Percentage(a, total)})
	}
	return out
}
