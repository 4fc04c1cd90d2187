package scheduler

import (
	"context"
	"errors"
	"testing"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
)

var testMetrics = metrics.NewMetrics()

// fakeStore scripts the pending-receipt queue.
type fakeStore struct {
	pending  []models.ReceiptRow
	statuses map[string]string
}

func newFakeStore(pending ...models.ReceiptRow) *fakeStore {
	return &fakeStore{pending: pending, statuses: make(map[string]string)}
}

func (f *fakeStore) PendingReceipts(limit int) ([]models.ReceiptRow, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) CountPendingReceipts() (int64, error) {
	var count int64
	for _, row := range f.pending {
		if f.statuses[row.ID] != models.LedgerStatusRecorded {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) UpdateLedgerStatus(id, status, errorMsg string) error {
	f.statuses[id] = status
	return nil
}

// fakeWriter fails for ids in failFor.
type fakeWriter struct {
	failFor  map[string]bool
	appended []string
}

func (w *fakeWriter) Append(ctx context.Context, record models.ReceiptRecord) error {
	if w.failFor[record.ID] {
		return errors.New("sheets unavailable")
	}
	w.appended = append(w.appended, record.ID)
	return nil
}

func TestSweeperRestart(t *testing.T) {
	cfg := &config.SweeperConfig{IntervalMinutes: 60, BatchSize: 10}
	sweeper := NewSweeper(cfg, newFakeStore(), &fakeWriter{}, testMetrics)

	if err := sweeper.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sweeper.IsRunning() {
		t.Fatalf("sweeper should be running after Start")
	}
	if err := sweeper.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sweeper.IsRunning() {
		t.Fatalf("sweeper should not be running after Stop")
	}
	if err := sweeper.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sweeper.IsRunning() {
		t.Fatalf("sweeper should be running after second Start")
	}
	// context should be active
	if sweeper.ctx == nil || sweeper.ctx.Err() != nil {
		t.Fatalf("sweeper context should be active after restart")
	}
	sweeper.Stop()
}

func TestRunOnceRetriesPendingWrites(t *testing.T) {
	rows := []models.ReceiptRow{
		{ID: "r1", Email: "a@mail.test", LedgerStatus: models.LedgerStatusPending},
		{ID: "r2", Email: "b@mail.test", LedgerStatus: models.LedgerStatusPending},
	}
	store := newFakeStore(rows...)
	writer := &fakeWriter{failFor: map[string]bool{"r2": true}}

	cfg := &config.SweeperConfig{IntervalMinutes: 60, BatchSize: 10}
	sweeper := NewSweeper(cfg, store, writer, testMetrics)

	if err := sweeper.RunOnce(); err != nil {
		t.Fatalf("run once failed: %v", err)
	}

	if len(writer.appended) != 1 || writer.appended[0] != "r1" {
		t.Fatalf("expected only r1 to be appended, got %v", writer.appended)
	}
	if store.statuses["r1"] != models.LedgerStatusRecorded {
		t.Fatalf("r1 should be recorded, got %q", store.statuses["r1"])
	}
	if store.statuses["r2"] != models.LedgerStatusPending {
		t.Fatalf("r2 should stay pending, got %q", store.statuses["r2"])
	}
}

func TestRunOnceHonorsBatchSize(t *testing.T) {
	rows := []models.ReceiptRow{
		{ID: "r1", LedgerStatus: models.LedgerStatusPending},
		{ID: "r2", LedgerStatus: models.LedgerStatusPending},
		{ID: "r3", LedgerStatus: models.LedgerStatusPending},
	}
	store := newFakeStore(rows...)
	writer := &fakeWriter{}

	cfg := &config.SweeperConfig{IntervalMinutes: 60, BatchSize: 2}
	sweeper := NewSweeper(cfg, store, writer, testMetrics)

	if err := sweeper.RunOnce(); err != nil {
		t.Fatalf("run once failed: %v", err)
	}

	if len(writer.appended) != 2 {
		t.Fatalf("expected 2 appends, got %d", len(writer.appended))
	}
}
