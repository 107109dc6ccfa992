package core

import (
	"encoding/json"
	"strings"
)

// Classification is the category assignment of a transaction. It is one of
// Unclassified, a receipt (category, sub) or a payment (category, sub1, sub2);
// fields are unexported so a value can never carry both directions.
type Classification struct {
	direction Direction
	category  string
	sub       string
	sub2      string
}

// Columns is the flat storage shape of a classification: one nullable
// column per field and direction.
type Columns struct {
	ReceiptCategory *string
	ReceiptSub      *string
	PaymentCategory *string
	PaymentSub1     *string
	PaymentSub2     *string
}

func Unclassified() Classification {
	return Classification{}
}

func ReceiptClass(category, sub string) Classification {
	return Classification{
		direction: Receipt,
		category:  strings.TrimSpace(category),
		sub:       strings.TrimSpace(sub),
	}
}

func PaymentClass(category, sub1, sub2 string) Classification {
	return Classification{
		direction: Payment,
		category:  strings.TrimSpace(category),
		sub:       strings.TrimSpace(sub1),
		sub2:      strings.TrimSpace(sub2),
	}
}

// NewClassification builds a validated classification for the direction.
func NewClassification(d Direction, category, sub, sub2 string) (Classification, error) {
	var c Classification
	switch d {
	case Receipt:
		if strings.TrimSpace(sub2) != "" {
			return Classification{}, NewValidationError("sub_category_2", "receipts have a single sub-category level")
		}
		c = ReceiptClass(category, sub)
	case Payment:
		c = PaymentClass(category, sub, sub2)
	default:
		return Classification{}, NewValidationError("direction", "must be receipt or payment")
	}
	if err := c.Validate(); err != nil {
		return Classification{}, err
	}
	return c, nil
}

func (c Classification) Direction() Direction { return c.direction }

func (c Classification) Category() string { return c.category }

func (c Classification) SubCategory() string { return c.sub }

// SubCategory2 is the second payment sub-category level.
func (c Classification) SubCategory2() string { return c.sub2 }

func (c Classification) IsClassified() bool {
	return c.direction.Valid()
}

func (c Classification) Validate() error {
	if c.direction == DirectionUnset {
		if c.category != "" || c.sub != "" || c.sub2 != "" {
			return ErrInvalidDirection
		}
		return nil
	}
	if !c.direction.Valid() {
		return ErrInvalidDirection
	}
	if c.category == "" {
		return NewValidationError("category", ErrEmptyCategory.Error())
	}
	if c.sub == "" && c.sub2 != "" {
		return NewValidationError("sub_category_2", "second level needs a first level sub-category")
	}
	return nil
}

// Columns returns the storage shape; the other direction's fields are nil.
func (c Classification) Columns() Columns {
	var cols Columns
	switch c.direction {
	case Receipt:
		cols.ReceiptCategory = strPtr(c.category)
		cols.ReceiptSub = optional(c.sub)
	case Payment:
		cols.PaymentCategory = strPtr(c.category)
		cols.PaymentSub1 = optional(c.sub)
		cols.PaymentSub2 = optional(c.sub2)
	}
	return cols
}

// ClassificationFromColumns rebuilds a classification from stored columns.
func ClassificationFromColumns(cols Columns) (Classification, error) {
	hasReceipt := cols.ReceiptCategory != nil && *cols.ReceiptCategory != ""
	hasPayment := cols.PaymentCategory != nil && *cols.PaymentCategory != ""
	switch {
	case hasReceipt && hasPayment:
		return Classification{}, ErrConflictingFields
	case hasReceipt:
		return ReceiptClass(*cols.ReceiptCategory, deref(cols.ReceiptSub)), nil
	case hasPayment:
		return PaymentClass(*cols.PaymentCategory, deref(cols.PaymentSub1), deref(cols.PaymentSub2)), nil
	default:
		return Unclassified(), nil
	}
}

type classificationJSON struct {
	Direction    Direction `json:"direction,omitempty"`
	Category     string    `json:"category,omitempty"`
	SubCategory  string    `json:"sub_category,omitempty"`
	SubCategory2 string    `json:"sub_category_2,omitempty"`
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return json.Marshal(classificationJSON{
		Direction:    c.direction,
		Category:     c.category,
		SubCategory:  c.sub,
		SubCategory2: c.sub2,
	})
}

func (c *Classification) UnmarshalJSON(b []byte) error {
	var raw classificationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Direction == DirectionUnset && raw.Category == "" {
		*c = Unclassified()
		return nil
	}
	v, err := NewClassification(raw.Direction, raw.Category, raw.SubCategory, raw.SubCategory2)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func strPtr(s string) *string { return &s }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
