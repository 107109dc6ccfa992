// Package worker keeps derived ledger data in step with ledger changes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kewangan/internal/amqp"
	klog "kewangan/internal/log"
)

// NotaRegenerator rebuilds the auto nota rows of a year.
type NotaRegenerator interface {
	RegenerateNota(ctx context.Context, year int) (int, error)
}

// ChangeConsumer delivers ledger change messages until ctx is done.
type ChangeConsumer interface {
	ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error
}

// NotaWorker regenerates nota rows when the ledger changes, and refreshes
// the current year on an interval.
type NotaWorker struct {
	reports  NotaRegenerator
	interval time.Duration
	logger   *klog.Logger
	now      func() time.Time
}

func NewNotaWorker(reports NotaRegenerator, interval time.Duration) *NotaWorker {
	return &NotaWorker{reports: reports, interval: interval, logger: klog.Named(klog.ComponentWorker), now: time.Now}
}

// HandleLedgerChanged regenerates every year named in msg. A failing year
// does not stop the others; the joined error requeues the message.
func (w *NotaWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger change",
		klog.FieldOperation, klog.OpConsume,
		klog.FieldMessageID, msg.ID,
		klog.FieldYears, msg.Years,
		klog.FieldReason, msg.Reason)

	var errs []error
	for _, year := range msg.Years {
		n, err := w.reports.RegenerateNota(ctx, year)
		if err != nil {
			errs = append(errs, fmt.Errorf("year %d: %w", year, err))
			continue
		}
		w.logger.DebugContext(ctx, "Nota rows regenerated", klog.FieldOperation, klog.OpNota, klog.FieldYear, year, klog.FieldCount, n)
	}
	return errors.Join(errs...)
}

// RefreshCurrentYear regenerates the nota rows of the current year.
func (w *NotaWorker) RefreshCurrentYear(ctx context.Context) error {
	year := w.now().Year()
	if _, err := w.reports.RegenerateNota(ctx, year); err != nil {
		return fmt.Errorf("refresh nota for %d: %w", year, err)
	}
	return nil
}

// Run refreshes the current year at once and then on every interval, and
// consumes change messages when consumer is non-nil. It returns when ctx is
// done or the consumer fails for good.
func (w *NotaWorker) Run(ctx context.Context, consumer ChangeConsumer) error {
	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeLedgerChanged(ctx, w.HandleLedgerChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			if err := w.RefreshCurrentYear(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic nota refresh failed", klog.NewFields().WithOperation(klog.OpNota).WithError(err).ToSlice()...)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}
