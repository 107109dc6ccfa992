package services

import (
	"context"
	"fmt"
	"slices"

	"kewangan/internal/cache"
	"kewangan/internal/core"
	"kewangan/internal/ledger"
	klog "kewangan/internal/log"
	"kewangan/internal/report"
)

// ReportStore is the part of the ledger reports are built from.
type ReportStore interface {
	ledger.TransactionReader
	ledger.StatementStore
	ledger.TaxonomyStore
	ledger.NotaStore
}

// ReportService builds yearly and monthly reports and keeps the auto nota
// rows in step with them. Aggregates are cached per year.
type ReportService struct {
	store  ReportStore
	cache  cache.Cache[int, report.YearAggregate]
	logger *klog.Logger
}

// NewReportService creates the service. A nil cache disables caching.
func NewReportService(store ReportStore, c cache.Cache[int, report.YearAggregate]) *ReportService {
	return &ReportService{store: store, cache: c, logger: klog.Named(klog.ComponentReport)}
}

// Aggregate returns the twelve-month aggregate of year.
func (s *ReportService) Aggregate(ctx context.Context, year int) (report.YearAggregate, error) {
	if year < 1 {
		return report.YearAggregate{}, core.NewValidationError("year", fmt.Sprintf("invalid year %d", year))
	}
	if s.cache != nil {
		if agg, ok := s.cache.Get(year); ok {
			return agg, nil
		}
	}

	cats, err := s.store.ListCategories(ctx, core.DirectionUnset)
	if err != nil {
		return report.YearAggregate{}, fmt.Errorf("list categories: %w", err)
	}
	statements, err := s.store.ListStatements(ctx)
	if err != nil {
		return report.YearAggregate{}, fmt.Errorf("list statements: %w", err)
	}
	// Everything up to January of the next year: the opening balance needs
	// the history and the December window needs the carry-back from January.
	txs, err := s.store.ListTransactions(ctx, core.TransactionQuery{
		To:         core.YearMonth{Year: year + 1, Month: 1},
		Classified: true,
	})
	if err != nil {
		return report.YearAggregate{}, fmt.Errorf("list transactions: %w", err)
	}

	opening := report.OpeningBalance(year, statements, txs)
	agg := report.NewAggregator(cats).Aggregate(year, txs, opening)

	fields := klog.NewFields().WithOperation(klog.OpReport).WithPeriod(year, 0)
	fields[klog.FieldCount] = len(txs)
	s.logger.DebugContext(ctx, "Aggregated year", fields.ToSlice()...)

	if s.cache != nil {
		s.cache.Set(year, agg)
	}
	return agg, nil
}

func (s *ReportService) YearlyReport(ctx context.Context, year int) (report.YearlyReport, error) {
	agg, err := s.Aggregate(ctx, year)
	if err != nil {
		return report.YearlyReport{}, err
	}
	return report.BuildYearly(agg), nil
}

func (s *ReportService) MonthlyReport(ctx context.Context, year, month int) (report.MonthlyReport, error) {
	if month < 1 || month > 12 {
		return report.MonthlyReport{}, core.NewValidationError("month", fmt.Sprintf("must be between 1 and 12, got %d", month))
	}
	agg, err := s.Aggregate(ctx, year)
	if err != nil {
		return report.MonthlyReport{}, err
	}
	return report.BuildMonthly(agg, month)
}

// RegenerateNota replaces the auto nota rows of year with freshly derived
// ones and returns how many were written. Running it twice leaves the same
// rows.
func (s *ReportService) RegenerateNota(ctx context.Context, year int) (int, error) {
	s.Invalidate(year)
	agg, err := s.Aggregate(ctx, year)
	if err != nil {
		return 0, err
	}
	rows := report.NotaRows(agg)
	if err := s.store.ReplaceAutoNota(ctx, year, rows); err != nil {
		return 0, fmt.Errorf("replace nota rows for %d: %w", year, err)
	}
	s.logger.InfoContext(ctx, "Regenerated nota rows",
		klog.FieldOperation, klog.OpNota,
		klog.FieldYear, year,
		klog.FieldCount, len(rows))
	return len(rows), nil
}

// Invalidate drops the cached aggregates of years and of every later year,
// whose opening balances carry the change forward. With no years the whole
// cache is dropped.
func (s *ReportService) Invalidate(years ...int) {
	if s.cache == nil {
		return
	}
	if len(years) == 0 {
		s.cache.Purge()
		return
	}
	first := slices.Min(years)
	s.cache.DeleteFunc(func(y int) bool { return y >= first })
}
