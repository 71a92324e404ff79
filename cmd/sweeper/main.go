// Package main runs the background worker: the lot expiration sweep
// and low-stock alerting, on a schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/lot_repo"
	"stockledger/internal/worker"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting stockledger worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	auditService, err := postgres.NewAuditService(txm)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}
	lotRepo := lot_repo.NewLotRepo(txm)
	stockRepo := ledger_repo.NewStockRepo(txm)

	sweeper := lots.NewSweeper(lotRepo, txm)
	stockStore := stock.NewStore(stockRepo)

	workerCfg := worker.DefaultConfig()
	if cfg.Sweep.Interval > 0 {
		workerCfg.SweepInterval = cfg.Sweep.Interval
	}
	if cfg.Sweep.LowStockInterval > 0 {
		workerCfg.LowStockInterval = cfg.Sweep.LowStockInterval
	}

	scheduler, err := worker.NewScheduler(sweeper, stockStore, auditService, workerCfg)
	if err != nil {
		log.Fatalw("failed to create scheduler", "error", err)
	}

	scheduler.Start()
	log.Infow("worker running",
		"sweep_interval", workerCfg.SweepInterval,
		"low_stock_interval", workerCfg.LowStockInterval,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	if err := scheduler.Stop(); err != nil {
		log.Errorw("scheduler shutdown failed", "error", err)
	}
	log.Info("worker stopped")
}
