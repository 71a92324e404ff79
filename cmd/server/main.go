// Package main is the entry point for the stockledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/catalogs/currency"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/domain/valuation"
	"stockledger/internal/infrastructure/cache"
	v1 "stockledger/internal/infrastructure/http/v1"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/auth_repo"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/storage/postgres/lot_repo"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

const version = "1.0.0"

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
	log.Info("starting stockledger server")

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DB.ConnectionString())
	poolCfg.MaxConns = cfg.DB.MaxConns
	poolCfg.MinConns = cfg.DB.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txm := postgres.NewTxManager(pool)

	auditService, err := postgres.NewAuditService(txm)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}

	// --- Redis snapshot cache (optional) ---
	var stockCache *cache.StockCache
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warnw("redis unavailable, reporting cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			stockCache = cache.NewStockCache(redisClient, cfg.Redis.SnapshotTTL)
			log.Info("redis snapshot cache enabled")
		}
	}

	// --- Repositories ---
	movementRepo := ledger_repo.NewMovementRepo(txm)
	stockRepo := ledger_repo.NewStockRepo(txm)
	lotRepo := lot_repo.NewLotRepo(txm)
	warehouseRepo := catalog_repo.NewWarehouseRepo(txm)
	productRepo := catalog_repo.NewProductRepo(txm)
	currencyRepo := catalog_repo.NewCurrencyRepo(txm)
	userRepo := auth_repo.NewUserRepo(txm)

	// --- Domain services ---
	stockStore := stock.NewStore(stockRepo)
	lotEngine := lots.NewEngine(lotRepo)
	warehouseService := warehouse.NewService(warehouseRepo)
	currencyService := currency.NewService(currencyRepo)
	pricer := valuation.NewAdapter(currencyService)

	ledgerService := ledger.NewService(
		movementRepo,
		stockStore,
		lotEngine,
		productRepo,
		warehouseService,
		pricer,
		txm,
		cfg.Ledger.LockTimeout,
	)

	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtCfg.Issuer = cfg.JWT.Issuer
	jwtCfg.AccessTokenTTL = cfg.JWT.TokenTTL
	jwtService := auth.NewJWTService(jwtCfg)
	authService := auth.NewService(userRepo, jwtService)

	// --- HTTP server ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:             pool.Unwrap(),
		TxM:              txm,
		Logger:           log,
		Version:          version,
		JWTValidator:     jwtService,
		AuthService:      authService,
		LedgerService:    ledgerService,
		StockStore:       stockStore,
		LotEngine:        lotEngine,
		LotRepo:          lotRepo,
		WarehouseService: warehouseService,
		CurrencyService:  currencyService,
		StockCache:       stockCache,
		Audit:            auditService,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("http server listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
