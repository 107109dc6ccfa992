package classify

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"kewangan/internal/core"
)

const (
	RuleUnattributedAmount    = "fallback:unattributed_amount"
	RuleTransferWithoutDetail = "fallback:transfer_without_detail"

	DefaultDonationCategory = "Sumbangan Am"
)

// FallbackConfig is the deployment data the fallback rules depend on.
type FallbackConfig struct {
	// DonationCategory is the general-donation receipt bucket.
	DonationCategory string
	// TransferMarkers are matched case-insensitively against the
	// counterparty reference; the organization's name and short code belong here.
	TransferMarkers []string
}

// DefaultFallbackConfig returns the generic transfer markers. Callers append
// the organization's own name and short code.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		DonationCategory: DefaultDonationCategory,
		TransferMarkers:  []string{"fund transfer", "transfer"},
	}
}

// FallbackRule is one heuristic consulted when no keyword matched.
type FallbackRule interface {
	ID() string
	Applies(tx core.Transaction) bool
}

// UnattributedAmountRule fires for a line with no counterparty reference
// whose payment detail carries a positive amount, e.g. "derma 200".
type UnattributedAmountRule struct{}

func (UnattributedAmountRule) ID() string { return RuleUnattributedAmount }

func (UnattributedAmountRule) Applies(tx core.Transaction) bool {
	if strings.TrimSpace(tx.CounterpartyRef) != "" {
		return false
	}
	detail := strings.TrimSpace(tx.PaymentDetail)
	if detail == "" {
		return false
	}
	return ContainsPositiveAmount(detail)
}

// TransferWithoutDetailRule fires for a bank transfer that left the
// payment detail blank.
type TransferWithoutDetailRule struct {
	markers []string
}

func NewTransferWithoutDetailRule(markers []string) TransferWithoutDetailRule {
	folded := make([]string, 0, len(markers))
	for _, m := range markers {
		f := strings.TrimSpace(Fold(m))
		if f != "" {
			folded = append(folded, f)
		}
	}
	return TransferWithoutDetailRule{markers: folded}
}

func (TransferWithoutDetailRule) ID() string { return RuleTransferWithoutDetail }

func (r TransferWithoutDetailRule) Applies(tx core.Transaction) bool {
	if strings.TrimSpace(tx.PaymentDetail) != "" {
		return false
	}
	ref := Fold(tx.CounterpartyRef)
	for _, m := range r.markers {
		if strings.Contains(ref, m) {
			return true
		}
	}
	return false
}

// FallbackRuleSet evaluates its rules in order; the first that applies wins.
type FallbackRuleSet struct {
	category string
	rules    []FallbackRule
}

// NewFallbackRuleSet builds the standard two-rule set from cfg.
func NewFallbackRuleSet(cfg FallbackConfig) *FallbackRuleSet {
	return NewFallbackRuleSetWithRules(cfg.DonationCategory,
		UnattributedAmountRule{},
		NewTransferWithoutDetailRule(cfg.TransferMarkers),
	)
}

// NewFallbackRuleSetWithRules builds a rule set evaluated in the given order.
func NewFallbackRuleSetWithRules(category string, rules ...FallbackRule) *FallbackRuleSet {
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultDonationCategory
	}
	return &FallbackRuleSet{category: category, rules: rules}
}

// Category is the bucket every fallback rule assigns.
func (s *FallbackRuleSet) Category() string {
	return s.category
}

// Apply returns the id of the first rule that files tx under the donation
// bucket. Only uncategorized receipts are considered.
func (s *FallbackRuleSet) Apply(tx core.Transaction) (string, bool) {
	if tx.IsClassified() || tx.FlowDirection() != core.Receipt {
		return "", false
	}
	for _, r := range s.rules {
		if r.Applies(tx) {
			return r.ID(), true
		}
	}
	return "", false
}

var numberPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ContainsPositiveAmount reports whether s holds a decimal number greater
// than zero. Thousands separators are accepted; unparseable tokens are skipped.
func ContainsPositiveAmount(s string) bool {
	for _, tok := range numberPattern.FindAllString(s, -1) {
		d, err := decimal.NewFromString(strings.ReplaceAll(tok, ",", ""))
		if err != nil {
			continue
		}
		if d.IsPositive() {
			return true
		}
	}
	return false
}
