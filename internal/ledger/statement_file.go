package ledger

import (
	"encoding/json"
	"fmt"
	"io"

	"kewangan/internal/core"
)

// StatementFile is the JSON document an imported bank statement arrives in.
type StatementFile struct {
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	OpeningBalance *core.Money     `json:"opening_balance,omitempty"`
	Lines          []StatementLine `json:"lines"`
}

// StatementLine is one row of a StatementFile.
type StatementLine struct {
	Date            string            `json:"date"`
	Credit          core.Money        `json:"credit"`
	Debit           core.Money        `json:"debit"`
	CounterpartyRef string            `json:"counterparty_ref"`
	PaymentDetail   string            `json:"payment_detail"`
	Direction       string            `json:"direction,omitempty"`
	PeriodMarker    core.PeriodMarker `json:"period_marker,omitempty"`
}

// DecodeStatementFile reads one statement document and validates every line.
func DecodeStatementFile(r io.Reader) (core.Statement, []core.Transaction, error) {
	var f StatementFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return core.Statement{}, nil, fmt.Errorf("decode statement: %w", err)
	}
	return f.Parse()
}

// Parse converts the document into a statement and its transactions.
func (f StatementFile) Parse() (core.Statement, []core.Transaction, error) {
	st := core.Statement{Year: f.Year, Month: f.Month, OpeningBalance: f.OpeningBalance}
	if err := st.YearMonth().Validate(); err != nil {
		return core.Statement{}, nil, fmt.Errorf("statement period: %w", err)
	}

	txs := make([]core.Transaction, 0, len(f.Lines))
	for i, l := range f.Lines {
		date, err := core.ParseDate(l.Date)
		if err != nil {
			return core.Statement{}, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		dir, err := core.ParseDirection(l.Direction)
		if err != nil {
			return core.Statement{}, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		tx := core.Transaction{
			Date:            date,
			Credit:          l.Credit,
			Debit:           l.Debit,
			CounterpartyRef: l.CounterpartyRef,
			PaymentDetail:   l.PaymentDetail,
			Direction:       dir,
			PeriodMarker:    l.PeriodMarker,
		}
		if err := tx.Validate(); err != nil {
			return core.Statement{}, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		txs = append(txs, tx)
	}
	return st, txs, nil
}
