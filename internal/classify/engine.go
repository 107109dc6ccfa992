package classify

import "kewangan/internal/core"

// Proposal is a category suggested for one transaction.
type Proposal struct {
	TransactionID int64          `json:"transaction_id"`
	Direction     core.Direction `json:"direction"`
	Category      string         `json:"proposed_category"`
	RuleID        string         `json:"rule_id"`
	Fallback      bool           `json:"fallback"`
}

// Classification converts the proposal into the value written to storage.
func (p Proposal) Classification() core.Classification {
	if p.Direction == core.Payment {
		return core.PaymentClass(p.Category, "", "")
	}
	return core.ReceiptClass(p.Category, "")
}

// Engine runs keyword matching and then the fallback rules.
type Engine struct {
	index    *KeywordIndex
	fallback *FallbackRuleSet
}

func NewEngine(index *KeywordIndex, fallback *FallbackRuleSet) *Engine {
	if index == nil {
		index = NewKeywordIndex(nil)
	}
	return &Engine{index: index, fallback: fallback}
}

// Classify proposes a category for tx regardless of its current state.
func (e *Engine) Classify(tx core.Transaction) (Proposal, bool) {
	dir := tx.FlowDirection()
	if !dir.Valid() {
		return Proposal{}, false
	}
	if m, ok := e.index.Match(dir, TransactionText(tx)); ok {
		return Proposal{
			TransactionID: tx.ID,
			Direction:     dir,
			Category:      m.Keyword.Category,
			RuleID:        m.RuleID,
		}, true
	}
	if e.fallback == nil {
		return Proposal{}, false
	}
	if ruleID, ok := e.fallback.Apply(tx); ok {
		return Proposal{
			TransactionID: tx.ID,
			Direction:     core.Receipt,
			Category:      e.fallback.Category(),
			RuleID:        ruleID,
			Fallback:      true,
		}, true
	}
	return Proposal{}, false
}

// Propose classifies every uncategorized transaction in txs, in input order.
// Already-categorized transactions are skipped.
func (e *Engine) Propose(txs []core.Transaction) []Proposal {
	out := make([]Proposal, 0, len(txs))
	for _, tx := range txs {
		if tx.IsClassified() {
			continue
		}
		if p, ok := e.Classify(tx); ok {
			out = append(out, p)
		}
	}
	return out
}

// Reclassify classifies tx as if it had never been categorized: the
// previous classification and the direction flag it implied are dropped and
// the direction is taken from the amounts again.
func (e *Engine) Reclassify(tx core.Transaction) (Proposal, bool) {
	fresh := tx
	fresh.Classification = core.Unclassified()
	if d := tx.AmountDirection(); d.Valid() {
		fresh.Direction = d
	}
	return e.Classify(fresh)
}
