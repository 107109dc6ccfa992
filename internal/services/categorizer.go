package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"kewangan/internal/classify"
	"kewangan/internal/core"
	"kewangan/internal/ledger"
	klog "kewangan/internal/log"
)

// RuleManual is the rule id recorded for operator-directed assignments.
const RuleManual = "manual"

// CategorizerStore is the part of the ledger the categorizer reads and writes.
type CategorizerStore interface {
	ledger.TransactionReader
	ledger.ClassificationWriter
	ledger.KeywordStore
	ledger.TaxonomyStore
}

// Scope selects the transactions a preview or commit runs over. Set at most
// one of StatementID, Year or IDs; the zero Scope covers the whole ledger.
type Scope struct {
	StatementID int64   `json:"statement_id,omitempty"`
	Year        int     `json:"year,omitempty"`
	IDs         []int64 `json:"ids,omitempty"`
}

func (s Scope) query() (core.TransactionQuery, error) {
	set := 0
	if s.StatementID != 0 {
		set++
	}
	if s.Year != 0 {
		set++
	}
	if len(s.IDs) > 0 {
		set++
	}
	if set > 1 {
		return core.TransactionQuery{}, core.NewValidationError("scope", "set only one of statement, year or ids")
	}

	q := core.TransactionQuery{StatementID: s.StatementID, IDs: s.IDs}
	if s.Year != 0 {
		if s.Year < 1 {
			return core.TransactionQuery{}, core.NewValidationError("year", fmt.Sprintf("invalid year %d", s.Year))
		}
		q.From, q.To = core.YearMonth{Year: s.Year, Month: 1}, core.YearMonth{Year: s.Year, Month: 12}
	}
	return q, nil
}

// CommitSummary reports how many transactions got a proposal and how many
// rows were actually written.
type CommitSummary struct {
	BatchID      string `json:"batch_id"`
	MatchedCount int    `json:"matched_count"`
	UpdatedCount int    `json:"updated_count"`
}

// BulkAssignRequest files the listed transactions under one category.
type BulkAssignRequest struct {
	IDs          []int64           `json:"ids"`
	Direction    core.Direction    `json:"direction"`
	Category     string            `json:"category"`
	SubCategory  string            `json:"sub_category,omitempty"`
	SubCategory2 string            `json:"sub_category2,omitempty"`
	PeriodMarker core.PeriodMarker `json:"period_marker,omitempty"`
	Actor        string            `json:"actor,omitempty"`
}

// Categorizer proposes and persists categories for ledger transactions.
type Categorizer struct {
	store    CategorizerStore
	fallback classify.FallbackConfig
	notify   notifier
	logger   *klog.Logger
	now      func() time.Time
}

// NewCategorizer wires the categorizer. publisher and invalidator may be nil.
func NewCategorizer(store CategorizerStore, fallback classify.FallbackConfig, publisher EventPublisher, invalidator ReportInvalidator) *Categorizer {
	logger := klog.Named(klog.ComponentCategorize)
	return &Categorizer{
		store:    store,
		fallback: fallback,
		notify:   newNotifier(publisher, invalidator, logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Categorizer) engine(ctx context.Context) (*classify.Engine, error) {
	keywords, err := c.store.ListKeywords(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	return classify.NewEngine(classify.NewKeywordIndex(keywords), classify.NewFallbackRuleSet(c.fallback)), nil
}

// Preview returns the proposals for every uncategorized transaction in scope
// without writing anything.
func (c *Categorizer) Preview(ctx context.Context, scope Scope) ([]classify.Proposal, error) {
	proposals, txs, err := c.propose(ctx, scope)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "Previewed categorization",
		klog.FieldOperation, klog.OpPreview,
		klog.FieldCount, len(txs),
		klog.FieldMatched, len(proposals))
	return proposals, nil
}

func (c *Categorizer) propose(ctx context.Context, scope Scope) ([]classify.Proposal, []core.Transaction, error) {
	q, err := scope.query()
	if err != nil {
		return nil, nil, err
	}
	q.Unclassified = true

	txs, err := c.store.ListTransactions(ctx, q)
	if err != nil {
		return nil, nil, fmt.Errorf("list transactions: %w", err)
	}
	engine, err := c.engine(ctx)
	if err != nil {
		return nil, nil, err
	}
	return engine.Propose(txs), txs, nil
}

// Commit writes the proposals of Preview. Rows that were categorized in the
// meantime are left alone and not counted as updated.
func (c *Categorizer) Commit(ctx context.Context, scope Scope) (CommitSummary, error) {
	proposals, txs, err := c.propose(ctx, scope)
	if err != nil {
		return CommitSummary{}, err
	}
	summary := CommitSummary{BatchID: uuid.NewString(), MatchedCount: len(proposals)}
	if len(proposals) == 0 {
		return summary, nil
	}

	summary.UpdatedCount, err = c.store.ApplyClassifications(ctx, c.autoAssignments(proposals, summary.BatchID), core.OnlyUnclassified)
	if err != nil {
		return CommitSummary{}, fmt.Errorf("apply classifications: %w", err)
	}

	c.logger.InfoContext(ctx, "Committed categorization batch",
		klog.NewFields().
			WithOperation(klog.OpCommit).
			WithBatch(summary.BatchID, summary.MatchedCount, summary.UpdatedCount).
			ToSlice()...)

	if summary.UpdatedCount > 0 {
		c.notify.changed(ctx, ReasonCategorized, proposed(txs, proposals)...)
	}
	return summary, nil
}

// Recategorize reruns the rules over ids whatever their current category.
// Transactions no rule matches keep their classification.
func (c *Categorizer) Recategorize(ctx context.Context, ids []int64) (CommitSummary, error) {
	if len(ids) == 0 {
		return CommitSummary{}, core.NewValidationError("ids", "at least one transaction id is required")
	}
	txs, err := c.store.ListTransactions(ctx, core.TransactionQuery{IDs: ids})
	if err != nil {
		return CommitSummary{}, fmt.Errorf("list transactions: %w", err)
	}
	engine, err := c.engine(ctx)
	if err != nil {
		return CommitSummary{}, err
	}

	var proposals []classify.Proposal
	for _, tx := range txs {
		if p, ok := engine.Reclassify(tx); ok {
			proposals = append(proposals, p)
		}
	}
	summary := CommitSummary{BatchID: uuid.NewString(), MatchedCount: len(proposals)}
	if len(proposals) == 0 {
		return summary, nil
	}

	summary.UpdatedCount, err = c.store.ApplyClassifications(ctx, c.autoAssignments(proposals, summary.BatchID), core.Overwrite)
	if err != nil {
		return CommitSummary{}, fmt.Errorf("apply classifications: %w", err)
	}

	c.logger.InfoContext(ctx, "Recategorized transactions",
		klog.NewFields().
			WithOperation(klog.OpRecategorize).
			WithBatch(summary.BatchID, summary.MatchedCount, summary.UpdatedCount).
			ToSlice()...)

	if summary.UpdatedCount > 0 {
		c.notify.changed(ctx, ReasonCategorized, proposed(txs, proposals)...)
	}
	return summary, nil
}

// BulkAssign files req.IDs under the requested category, replacing whatever
// they carried. Unknown ids are skipped.
func (c *Categorizer) BulkAssign(ctx context.Context, req BulkAssignRequest) (CommitSummary, error) {
	if len(req.IDs) == 0 {
		return CommitSummary{}, core.NewValidationError("ids", "at least one transaction id is required")
	}
	class, err := core.NewClassification(req.Direction, req.Category, req.SubCategory, req.SubCategory2)
	if err != nil {
		return CommitSummary{}, err
	}
	if err := c.checkTaxonomy(ctx, class); err != nil {
		return CommitSummary{}, err
	}

	txs, err := c.store.ListTransactions(ctx, core.TransactionQuery{IDs: req.IDs})
	if err != nil {
		return CommitSummary{}, fmt.Errorf("list transactions: %w", err)
	}

	actor := req.Actor
	if actor == "" {
		actor = "operator"
	}
	summary := CommitSummary{BatchID: uuid.NewString(), MatchedCount: len(txs)}
	prov := core.Provenance{Actor: actor, RuleID: RuleManual, BatchID: summary.BatchID, At: c.now().UTC()}
	as := make([]core.Assignment, 0, len(txs))
	for _, tx := range txs {
		as = append(as, core.Assignment{
			TransactionID:  tx.ID,
			Classification: class,
			UpdateMarker:   req.PeriodMarker != core.PeriodUnset,
			PeriodMarker:   req.PeriodMarker,
			Provenance:     prov,
		})
	}
	if len(as) == 0 {
		return summary, nil
	}

	summary.UpdatedCount, err = c.store.ApplyClassifications(ctx, as, core.Overwrite)
	if err != nil {
		return CommitSummary{}, fmt.Errorf("apply classifications: %w", err)
	}

	c.logger.InfoContext(ctx, "Bulk assigned category",
		klog.FieldOperation, klog.OpBulkAssign,
		klog.FieldBatchID, summary.BatchID,
		klog.FieldDirection, req.Direction,
		klog.FieldCategory, req.Category,
		klog.FieldActor, actor,
		klog.FieldUpdated, summary.UpdatedCount)

	if summary.UpdatedCount > 0 {
		touched := slices.Clone(txs)
		if req.PeriodMarker != core.PeriodUnset {
			// Both the old and the new marker decide which years change.
			for _, tx := range txs {
				tx.PeriodMarker = req.PeriodMarker
				touched = append(touched, tx)
			}
		}
		c.notify.changed(ctx, ReasonCategorized, touched...)
	}
	return summary, nil
}

// checkTaxonomy rejects categories that are not active in the direction's
// taxonomy, and sub-categories that do not sit under their parent.
func (c *Categorizer) checkTaxonomy(ctx context.Context, class core.Classification) error {
	dir := class.Direction()
	cats, err := c.store.ListCategories(ctx, dir)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	has := func(level int, name, parent string) bool {
		for _, cat := range cats {
			if cat.Active && cat.Level == level && cat.Name == name && (level == 0 || cat.Parent == parent) {
				return true
			}
		}
		return false
	}

	if !has(0, class.Category(), "") {
		return core.NewValidationError("category", fmt.Sprintf("%q is not a %s category", class.Category(), dir))
	}
	if sub := class.SubCategory(); sub != "" && !has(1, sub, class.Category()) {
		return core.NewValidationError("sub_category", fmt.Sprintf("%q is not a sub-category of %q", sub, class.Category()))
	}
	if sub2 := class.SubCategory2(); sub2 != "" && !has(2, sub2, class.SubCategory()) {
		return core.NewValidationError("sub_category2", fmt.Sprintf("%q is not a sub-category of %q", sub2, class.SubCategory()))
	}
	return nil
}

func (c *Categorizer) autoAssignments(proposals []classify.Proposal, batchID string) []core.Assignment {
	at := c.now().UTC()
	as := make([]core.Assignment, 0, len(proposals))
	for _, p := range proposals {
		as = append(as, core.Assignment{
			TransactionID:  p.TransactionID,
			Classification: p.Classification(),
			Provenance: core.Provenance{
				Actor:   core.ActorAuto,
				Auto:    true,
				RuleID:  p.RuleID,
				BatchID: batchID,
				At:      at,
			},
		})
	}
	return as
}

// proposed returns the transactions of txs that have a proposal.
func proposed(txs []core.Transaction, proposals []classify.Proposal) []core.Transaction {
	ids := make(map[int64]struct{}, len(proposals))
	for _, p := range proposals {
		ids[p.TransactionID] = struct{}{}
	}
	out := make([]core.Transaction, 0, len(proposals))
	for _, tx := range txs {
		if _, ok := ids[tx.ID]; ok {
			out = append(out, tx)
		}
	}
	return out
}
