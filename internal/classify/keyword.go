// Package classify assigns receipt/payment categories to bank-statement lines.
//
// Keyword rules are tried first, most specific (longest) keyword first; when
// none matches, a small ordered set of fallback heuristics may still file a
// receipt under the general-donation bucket. Everything here is pure: it
// reads transactions and rules and returns proposals without side effects.
package classify

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"kewangan/internal/core"
)

// Match is the keyword that classified a transaction.
type Match struct {
	Keyword core.Keyword
	RuleID  string
}

type entry struct {
	keyword core.Keyword
	folded  string
	seq     int
}

// KeywordIndex holds the active keywords per direction, ordered by
// specificity.
type KeywordIndex struct {
	byDirection map[core.Direction][]entry
}

// NewKeywordIndex builds the index. keywords must be in insertion order
// (storage returns them ordered by id); that position breaks length ties.
// Inactive keywords and keywords with blank text are left out.
func NewKeywordIndex(keywords []core.Keyword) *KeywordIndex {
	ix := &KeywordIndex{byDirection: make(map[core.Direction][]entry)}
	for i, kw := range keywords {
		if !kw.Active || !kw.Direction.Valid() {
			continue
		}
		folded := Fold(kw.Text)
		if strings.TrimSpace(folded) == "" {
			continue
		}
		ix.byDirection[kw.Direction] = append(ix.byDirection[kw.Direction], entry{
			keyword: kw,
			folded:  folded,
			seq:     i,
		})
	}
	for dir := range ix.byDirection {
		slices.SortFunc(ix.byDirection[dir], compareEntries)
	}
	return ix
}

// compareEntries orders by (text length desc, insertion seq asc).
func compareEntries(a, b entry) int {
	if c := cmp.Compare(len(b.folded), len(a.folded)); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// Candidates returns the keywords consulted for a direction, in match order.
func (ix *KeywordIndex) Candidates(dir core.Direction) []core.Keyword {
	entries := ix.byDirection[dir]
	out := make([]core.Keyword, len(entries))
	for i, e := range entries {
		out[i] = e.keyword
	}
	return out
}

// Len is the number of indexed keywords across both directions.
func (ix *KeywordIndex) Len() int {
	n := 0
	for _, entries := range ix.byDirection {
		n += len(entries)
	}
	return n
}

// Match returns the first keyword of dir, in specificity order, whose text
// occurs in searchable. searchable must already be folded (see SearchableText).
func (ix *KeywordIndex) Match(dir core.Direction, searchable string) (Match, bool) {
	for _, e := range ix.byDirection[dir] {
		if strings.Contains(searchable, e.folded) {
			return Match{Keyword: e.keyword, RuleID: KeywordRuleID(e.keyword)}, true
		}
	}
	return Match{}, false
}

// KeywordRuleID is the provenance id recorded for a keyword match.
func KeywordRuleID(kw core.Keyword) string {
	return fmt.Sprintf("keyword:%d", kw.ID)
}

// Fold case-folds s for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// SearchableText folds and space-joins the reference fields. Empty fields
// are kept so the layout is the same for every transaction.
func SearchableText(fields ...string) string {
	folded := make([]string, len(fields))
	for i, f := range fields {
		folded[i] = Fold(f)
	}
	return strings.Join(folded, " ")
}

// TransactionText is the searchable text of a transaction.
func TransactionText(tx core.Transaction) string {
	return SearchableText(tx.CounterpartyRef, tx.PaymentDetail)
}
