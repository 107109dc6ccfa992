package worker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"kewangan/internal/amqp"
)

type fakeReports struct {
	mu    sync.Mutex
	years []int
	fail  map[int]bool
}

func (f *fakeReports) RegenerateNota(_ context.Context, year int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.years = append(f.years, year)
	if f.fail[year] {
		return 0, errors.New("store unavailable")
	}
	return 1, nil
}

func (f *fakeReports) regenerated() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.years)
}

func TestNotaWorker_HandleLedgerChanged(t *testing.T) {
	tests := []struct {
		name    string
		years   []int
		fail    map[int]bool
		wantErr bool
	}{
		{name: "every year regenerated", years: []int{2023, 2024}},
		{name: "failure still runs the rest", years: []int{2023, 2024}, fail: map[int]bool{2023: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports := &fakeReports{fail: tt.fail}
			w := NewNotaWorker(reports, time.Hour)

			err := w.HandleLedgerChanged(context.Background(), amqp.NewLedgerChangedMessage(tt.years, amqp.ReasonCategorized))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleLedgerChanged() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := reports.regenerated(); !slices.Equal(got, tt.years) {
				t.Errorf("regenerated %v, want %v", got, tt.years)
			}
		})
	}
}

func TestNotaWorker_RefreshCurrentYear(t *testing.T) {
	reports := &fakeReports{}
	w := NewNotaWorker(reports, time.Hour)
	w.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	if err := w.RefreshCurrentYear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := reports.regenerated(); !slices.Equal(got, []int{2025}) {
		t.Errorf("regenerated %v", got)
	}
}

type fakeConsumer struct {
	msg *amqp.LedgerChangedMessage
	err error
}

func (f *fakeConsumer) ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error {
	if f.msg != nil {
		if err := handler(ctx, f.msg); err != nil {
			return err
		}
	}
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestNotaWorker_Run(t *testing.T) {
	t.Run("stops cleanly on cancel", func(t *testing.T) {
		reports := &fakeReports{}
		w := NewNotaWorker(reports, time.Hour)
		w.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
		consumer := &fakeConsumer{msg: amqp.NewLedgerChangedMessage([]int{2020}, amqp.ReasonImported)}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx, consumer) }()

		deadline := time.After(2 * time.Second)
		for len(reports.regenerated()) < 2 {
			select {
			case <-deadline:
				t.Fatalf("regenerated %v before timeout", reports.regenerated())
			case <-time.After(5 * time.Millisecond):
			}
		}
		cancel()

		if err := <-done; err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		got := reports.regenerated()
		if !slices.Contains(got, 2020) || !slices.Contains(got, 2024) {
			t.Errorf("regenerated %v, want 2020 and 2024", got)
		}
	})

	t.Run("consumer failure ends the run", func(t *testing.T) {
		w := NewNotaWorker(&fakeReports{}, time.Hour)
		boom := errors.New("channel closed for good")

		if err := w.Run(context.Background(), &fakeConsumer{err: boom}); !errors.Is(err, boom) {
			t.Fatalf("Run() error = %v, want %v", err, boom)
		}
	})
}
