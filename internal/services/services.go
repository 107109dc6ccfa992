// Package services orchestrates the categorization core, the ledger store and
// the change events around them.
package services

import (
	"context"
	"slices"

	"kewangan/internal/core"
	klog "kewangan/internal/log"
	"kewangan/internal/period"
)

// EventPublisher announces that reports of the given years are stale.
type EventPublisher interface {
	PublishLedgerChanged(ctx context.Context, years []int, reason string) error
}

// ReportInvalidator drops cached reports. With no years it drops everything.
type ReportInvalidator interface {
	Invalidate(years ...int)
}

// Reasons passed to EventPublisher.
const (
	ReasonCategorized = "categorized"
	ReasonImported    = "imported"
)

// notifier fans a ledger change out to the cache and the message bus.
// Publishing is best effort: the write it follows has already succeeded.
type notifier struct {
	publisher   EventPublisher
	invalidator ReportInvalidator
	logger      *klog.Logger
}

func newNotifier(publisher EventPublisher, invalidator ReportInvalidator, logger *klog.Logger) notifier {
	return notifier{publisher: publisher, invalidator: invalidator, logger: logger}
}

func (n notifier) changed(ctx context.Context, reason string, txs ...core.Transaction) {
	years := affectedYears(txs)
	if len(years) == 0 {
		return
	}
	if n.invalidator != nil {
		n.invalidator.Invalidate(years...)
	}
	if n.publisher == nil {
		n.logger.DebugContext(ctx, "No event publisher, skipping ledger change", klog.FieldYears, years)
		return
	}
	if err := n.publisher.PublishLedgerChanged(ctx, years, reason); err != nil {
		fields := klog.NewFields().WithOperation(klog.OpPublish).WithError(err)
		fields[klog.FieldErrorType] = klog.ErrorTypeNetwork
		fields[klog.FieldYears] = years
		fields[klog.FieldReason] = reason
		n.logger.ErrorContext(ctx, "Failed to publish ledger change", fields.ToSlice()...)
	}
}

// affectedYears returns the sorted reporting years txs count toward.
func affectedYears(txs []core.Transaction) []int {
	var years []int
	for _, tx := range txs {
		years = append(years, period.Years(tx)...)
	}
	slices.Sort(years)
	return slices.Compact(years)
}
