package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"receipt-ledger-go/internal/config"
	"receipt-ledger-go/internal/ledger"
	"receipt-ledger-go/internal/metrics"
	"receipt-ledger-go/internal/models"
)

// Store is the slice of the repository the sweeper needs.
type Store interface {
	PendingReceipts(limit int) ([]models.ReceiptRow, error)
	CountPendingReceipts() (int64, error)
	UpdateLedgerStatus(id, status, errorMsg string) error
}

// Sweeper periodically re-attempts ledger appends that failed during
// pipeline runs, so a spreadsheet outage never loses receipts.
type Sweeper struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	config    *config.SweeperConfig
	store     Store
	writer    ledger.Writer
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewSweeper creates a new ledger retry sweeper
func NewSweeper(cfg *config.SweeperConfig, store Store, writer ledger.Writer, m *metrics.Metrics) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		cron:    cron.New(cron.WithSeconds()),
		config:  cfg,
		store:   store,
		writer:  writer,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the sweeper
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("sweeper is already running")
	}

	// Recreate the context if a previous Stop cancelled it.
	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	schedule := fmt.Sprintf("0 */%d * * * *", s.config.IntervalMinutes)

	entryID, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Ledger sweeper started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the sweeper
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	s.cron.Remove(s.entryID)

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Ledger sweeper stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Ledger sweeper stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the sweeper is running
func (s *Sweeper) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// sweep retries every pending ledger append once.
func (s *Sweeper) sweep() {
	s.wg.Add(1)
	defer s.wg.Done()

	rows, err := s.store.PendingReceipts(s.config.BatchSize)
	if err != nil {
		logrus.Errorf("Failed to load pending receipts: %v", err)
		return
	}

	if len(rows) == 0 {
		s.metrics.PendingWrites.Set(0)
		return
	}

	logrus.Infof("Retrying %d pending ledger write(s)", len(rows))

	for _, row := range rows {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.metrics.LedgerRetries.Inc()

		if err := s.writer.Append(s.ctx, row.Record()); err != nil {
			logrus.Warnf("Ledger retry failed for receipt %s: %v", row.ID, err)
			if updateErr := s.store.UpdateLedgerStatus(row.ID, models.LedgerStatusPending, err.Error()); updateErr != nil {
				logrus.Errorf("Failed to update receipt %s: %v", row.ID, updateErr)
			}
			continue
		}

		if err := s.store.UpdateLedgerStatus(row.ID, models.LedgerStatusRecorded, ""); err != nil {
			logrus.Errorf("Failed to update receipt %s: %v", row.ID, err)
			continue
		}
		logrus.Infof("Ledger retry succeeded for receipt %s", row.ID)
	}

	if pending, err := s.store.CountPendingReceipts(); err == nil {
		s.metrics.PendingWrites.Set(float64(pending))
	}
}

// RunOnce runs the sweep once (for manual triggering)
func (s *Sweeper) RunOnce() error {
	logrus.Info("Running ledger sweep once")
	s.sweep()
	return nil
}

// GetNextRun returns the time of the next scheduled run
func (s *Sweeper) GetNextRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last run
func (s *Sweeper) GetLastRun() time.Time {
	if !s.IsRunning() {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for any in-flight sweep to finish
func (s *Sweeper) Wait() {
	s.wg.Wait()
}
