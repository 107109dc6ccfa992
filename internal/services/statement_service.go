package services

import (
	"context"
	"fmt"

	"kewangan/internal/core"
	"kewangan/internal/ledger"
	klog "kewangan/internal/log"
)

// StatementService imports bank statements into the ledger.
type StatementService struct {
	store  ledger.StatementStore
	notify notifier
	logger *klog.Logger
}

// NewStatementService creates the service. publisher and invalidator may be
// nil.
func NewStatementService(store ledger.StatementStore, publisher EventPublisher, invalidator ReportInvalidator) *StatementService {
	logger := klog.Named(klog.ComponentStorage)
	return &StatementService{store: store, notify: newNotifier(publisher, invalidator, logger), logger: logger}
}

func (s *StatementService) List(ctx context.Context) ([]core.Statement, error) {
	return s.store.ListStatements(ctx)
}

// Import validates f and stores it with its lines.
func (s *StatementService) Import(ctx context.Context, f ledger.StatementFile) (core.Statement, error) {
	st, lines, err := f.Parse()
	if err != nil {
		return core.Statement{}, core.NewValidationError("statement", err.Error())
	}
	stored, err := s.store.ImportStatement(ctx, st, lines)
	if err != nil {
		return core.Statement{}, fmt.Errorf("import statement %d-%02d: %w", st.Year, st.Month, err)
	}

	fields := klog.NewFields().WithOperation(klog.OpImport).WithPeriod(stored.Year, stored.Month)
	fields[klog.FieldStatementID] = stored.ID
	fields[klog.FieldCount] = len(lines)
	s.logger.InfoContext(ctx, "Imported statement", fields.ToSlice()...)

	// An opening balance feeds every later year; the lines only their own.
	touched := lines
	if stored.OpeningBalance != nil {
		touched = append(touched, core.Transaction{Date: core.NewDate(stored.Year, stored.Month, 1)})
	}
	s.notify.changed(ctx, ReasonImported, touched...)
	return stored, nil
}
