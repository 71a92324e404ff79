// Package worker schedules the background maintenance jobs: the lot
// expiration sweep and low-stock alerting.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// Config controls job intervals.
type Config struct {
	SweepInterval    time.Duration
	LowStockInterval time.Duration
}

// DefaultConfig returns the standard intervals.
func DefaultConfig() Config {
	return Config{
		SweepInterval:    time.Hour,
		LowStockInterval: 30 * time.Minute,
	}
}

// Scheduler runs the ledger's periodic jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
	sweeper   *lots.Sweeper
	stocks    *stock.Store
	audit     *postgres.AuditService
	cfg       Config
}

// NewScheduler creates a scheduler with the sweep and alert jobs registered.
// The audit service may be nil.
func NewScheduler(sweeper *lots.Sweeper, stocks *stock.Store, audit *postgres.AuditService, cfg Config) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		scheduler: gs,
		sweeper:   sweeper,
		stocks:    stocks,
		audit:     audit,
		cfg:       cfg,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	// Singleton mode: a long sweep must not overlap the next tick.
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.SweepInterval),
		gocron.NewTask(s.runSweep, context.Background()),
		gocron.WithName("lot-expiration-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}

	_, err = s.scheduler.NewJob(
		gocron.DurationJob(s.cfg.LowStockInterval),
		gocron.NewTask(s.runLowStockAlerts, context.Background()),
		gocron.WithName("low-stock-alerts"),
	)
	if err != nil {
		return fmt.Errorf("register low-stock job: %w", err)
	}

	return nil
}

// Start begins job execution.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// runSweep flips expired lots.
func (s *Scheduler) runSweep(ctx context.Context) {
	expired, err := s.sweeper.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		logger.Error(ctx, "expiration sweep failed", "error", err)
		return
	}
	if s.audit != nil {
		for _, lot := range expired {
			if err := s.audit.LogChange(ctx, "lot", lot.ID, postgres.AuditActionExpire, lot); err != nil {
				logger.Warn(ctx, "audit write failed", "lot_id", lot.ID, "error", err)
			}
		}
	}
	if len(expired) > 0 {
		logger.Info(ctx, "expiration sweep done", "lots_expired", len(expired))
	}
}

// runLowStockAlerts logs keys under their reorder threshold.
func (s *Scheduler) runLowStockAlerts(ctx context.Context) {
	var all *id.ID
	records, err := s.stocks.BelowMinimum(ctx, all)
	if err != nil {
		logger.Error(ctx, "low-stock check failed", "error", err)
		return
	}

	for _, rec := range records {
		logger.Warn(ctx, "stock below minimum",
			"product_id", rec.ProductID,
			"warehouse_id", rec.WarehouseID,
			"quantity", rec.Quantity,
			"min_quantity", rec.MinQuantity,
		)
	}
	if len(records) > 0 {
		logger.Info(ctx, "low-stock check done", "keys_below_minimum", len(records))
	}
}
