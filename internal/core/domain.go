package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DirectionUnset Direction = ""
	Receipt        Direction = "receipt"
	Payment        Direction = "payment"
)

const (
	PeriodUnset PeriodMarker = iota
	PeriodThisMonth
	PeriodNextMonth
	PeriodPriorMonth
)

// ActorAuto is recorded as the categorizing actor for rule-based assignments.
const ActorAuto = "auto"

type (
	// Direction tells whether money came in (receipt) or went out (payment).
	Direction string

	// PeriodMarker states which reporting month a transaction counts toward,
	// relative to the calendar month of its transaction date.
	PeriodMarker int

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Provenance records who categorized a transaction and how.
	Provenance struct {
		Actor   string    `json:"actor,omitempty"`
		Auto    bool      `json:"auto"`
		RuleID  string    `json:"rule_id,omitempty"`
		BatchID string    `json:"batch_id,omitempty"`
		At      time.Time `json:"at,omitzero"`
	}

	// Transaction is one bank-statement line.
	Transaction struct {
		ID              int64
		StatementID     int64
		Date            Date
		Credit          Money
		Debit           Money
		CounterpartyRef string
		PaymentDetail   string
		Direction       Direction
		Classification  Classification
		PeriodMarker    PeriodMarker
		Provenance      Provenance
	}

	Keyword struct {
		ID        int64     `json:"id"`
		Direction Direction `json:"direction"`
		Category  string    `json:"category"`
		Text      string    `json:"text"`
		Active    bool      `json:"active"`
	}

	// Category is a bucket in one direction's taxonomy. Level 0 entries are
	// top-level categories, level 1 and 2 are sub-categories of Parent.
	Category struct {
		ID        int64     `json:"id"`
		Direction Direction `json:"direction"`
		Name      string    `json:"name"`
		Parent    string    `json:"parent,omitempty"`
		Level     int       `json:"level"`
		Active    bool      `json:"active"`
		SortOrder int       `json:"sort_order"`
	}

	// Statement is an imported bank statement for one calendar month.
	Statement struct {
		ID             int64
		Year           int
		Month          int
		OpeningBalance *Money
	}

	// NotaRow is a derived aggregate persisted for ledger-note consumers.
	NotaRow struct {
		Year      int       `json:"year"`
		Month     int       `json:"month"`
		Direction Direction `json:"direction"`
		Category  string    `json:"category"`
		Amount    Money     `json:"amount"`
		Auto      bool      `json:"auto"`
	}

	// Assignment is one pending classification write.
	Assignment struct {
		TransactionID  int64
		Classification Classification
		UpdateMarker   bool
		PeriodMarker   PeriodMarker
		Provenance     Provenance
	}

	// TransactionQuery scopes a transaction read. Zero fields do not filter.
	// From and To are inclusive calendar months of the transaction date.
	TransactionQuery struct {
		StatementID  int64
		IDs          []int64
		From         YearMonth
		To           YearMonth
		Unclassified bool
		Classified   bool
	}
)

// WriteMode controls whether a classification write may replace an existing one.
type WriteMode int

const (
	// OnlyUnclassified skips rows that already carry a category.
	OnlyUnclassified WriteMode = iota
	// Overwrite replaces the current classification, clearing the other direction.
	Overwrite
)

var (
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidDirection  = errors.New("invalid direction")
	ErrEmptyCategory     = errors.New("empty category")
	ErrBothAmounts       = errors.New("credit and debit are mutually exclusive")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
	ErrInvalidMarker     = errors.New("invalid period marker")
	ErrConflictingFields = errors.New("category set for both directions")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// String formats the date as 2006-01-02.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Direction) Valid() bool {
	return d == Receipt || d == Payment
}

// Opposite returns the other direction; unset stays unset.
func (d Direction) Opposite() Direction {
	switch d {
	case Receipt:
		return Payment
	case Payment:
		return Receipt
	default:
		return DirectionUnset
	}
}

// ParseDirection accepts the canonical names and the legacy Malay labels.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DirectionUnset, nil
	case "receipt", "terimaan":
		return Receipt, nil
	case "payment", "bayaran":
		return Payment, nil
	default:
		return DirectionUnset, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// Effective resolves the unset marker to this_month. Every consumer of the
// marker goes through here so NULL and this_month never diverge.
func (p PeriodMarker) Effective() PeriodMarker {
	if p == PeriodUnset {
		return PeriodThisMonth
	}
	return p
}

// Offset is the number of months between the calendar month and the
// reporting month the marker points to.
func (p PeriodMarker) Offset() int {
	switch p.Effective() {
	case PeriodNextMonth:
		return 1
	case PeriodPriorMonth:
		return -1
	default:
		return 0
	}
}

func (p PeriodMarker) String() string {
	switch p {
	case PeriodThisMonth:
		return "this_month"
	case PeriodNextMonth:
		return "next_month"
	case PeriodPriorMonth:
		return "prior_month"
	default:
		return ""
	}
}

// ParsePeriodMarker maps stored values, including legacy bulan_perkiraan
// labels, onto the enum. Empty input is PeriodUnset.
func ParsePeriodMarker(s string) (PeriodMarker, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PeriodUnset, nil
	case "this_month", "bulan_semasa":
		return PeriodThisMonth, nil
	case "next_month", "bulan_depan", "bulan_hadapan":
		return PeriodNextMonth, nil
	case "prior_month", "bulan_sebelum", "bulan_lepas":
		return PeriodPriorMonth, nil
	default:
		return PeriodUnset, fmt.Errorf("%w: %q", ErrInvalidMarker, s)
	}
}

func (p PeriodMarker) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PeriodMarker) UnmarshalText(b []byte) error {
	v, err := ParsePeriodMarker(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

// FlowDirection is the direction used for rule matching: the flagged
// direction when present, otherwise the one implied by the amounts.
func (t Transaction) FlowDirection() Direction {
	if t.Direction.Valid() {
		return t.Direction
	}
	return t.AmountDirection()
}

// AmountDirection infers the direction from which amount column is filled.
func (t Transaction) AmountDirection() Direction {
	switch {
	case t.Credit.Cents > 0:
		return Receipt
	case t.Debit.Cents > 0:
		return Payment
	default:
		return DirectionUnset
	}
}

// Amount returns the value that counts toward the transaction's classified
// direction: credit for receipts, debit for payments.
func (t Transaction) Amount() Money {
	switch t.Classification.Direction() {
	case Receipt:
		return t.Credit
	case Payment:
		return t.Debit
	default:
		return Money{}
	}
}

// CalendarMonth is the month of the transaction date.
func (t Transaction) CalendarMonth() YearMonth {
	return YearMonthOf(t.Date.Time)
}

func (t Transaction) IsClassified() bool {
	return t.Classification.IsClassified()
}

// Classify sets the classification together with the direction it implies,
// so the direction flag never disagrees with the category fields.
func (t *Transaction) Classify(c Classification, p Provenance) {
	t.Classification = c
	t.Direction = c.Direction()
	t.Provenance = p
}

// Apply writes an assignment onto the transaction.
func (t *Transaction) Apply(a Assignment) {
	t.Classify(a.Classification, a.Provenance)
	if a.UpdateMarker {
		t.PeriodMarker = a.PeriodMarker
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Credit.Cents < 0 || t.Debit.Cents < 0 {
		return ErrNegativeAmount
	}
	if t.Credit.Cents > 0 && t.Debit.Cents > 0 {
		return ErrBothAmounts
	}
	if t.Direction != DirectionUnset && !t.Direction.Valid() {
		return ErrInvalidDirection
	}
	return t.Classification.Validate()
}

func (k Keyword) Validate() error {
	if !k.Direction.Valid() {
		return NewValidationError("direction", "must be receipt or payment")
	}
	if strings.TrimSpace(k.Category) == "" {
		return NewValidationError("category", ErrEmptyCategory.Error())
	}
	if strings.TrimSpace(k.Text) == "" {
		return NewValidationError("text", "keyword text cannot be empty")
	}
	return nil
}

func (c Category) Validate() error {
	if !c.Direction.Valid() {
		return NewValidationError("direction", "must be receipt or payment")
	}
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", ErrEmptyCategory.Error())
	}
	maxLevel := 1
	if c.Direction == Payment {
		maxLevel = 2
	}
	if c.Level < 0 || c.Level > maxLevel {
		return NewValidationError("level", fmt.Sprintf("must be between 0 and %d for %s", maxLevel, c.Direction))
	}
	if c.Level > 0 && strings.TrimSpace(c.Parent) == "" {
		return NewValidationError("parent", "sub-category needs a parent")
	}
	return nil
}

// YearMonth returns the statement's calendar month.
func (s Statement) YearMonth() YearMonth {
	return YearMonth{Year: s.Year, Month: s.Month}
}
