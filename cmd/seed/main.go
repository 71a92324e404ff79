// Package main seeds a fresh database: the base currency, a default
// warehouse and an administrator account. Safe to re-run, existing rows
// are left alone.
package main

import (
	"context"
	"fmt"
	"os"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/catalogs/currency"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/auth_repo"
	"stockledger/internal/infrastructure/storage/postgres/catalog_repo"
	"stockledger/pkg/config"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.App.LogLevel, Development: true})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DB.ConnectionString()))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	currencyService := currency.NewService(catalog_repo.NewCurrencyRepo(txm))
	warehouseService := warehouse.NewService(catalog_repo.NewWarehouseRepo(txm))
	authService := auth.NewService(auth_repo.NewUserRepo(txm), auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWT.Secret)))

	seedBaseCurrency(ctx, log, currencyService, cfg.Ledger.BaseCurrencyCode)
	seedWarehouse(ctx, log, warehouseService)
	seedAdmin(ctx, log, authService)

	log.Info("seed completed")
}

func seedBaseCurrency(ctx context.Context, log *logger.Logger, svc *currency.Service, isoCode string) {
	if _, err := svc.GetBase(ctx); err == nil {
		log.Info("base currency already present")
		return
	}

	base := currency.NewCurrency(isoCode, isoCode)
	base.IsBase = true
	base.DecimalPlaces = 0

	if err := svc.Create(ctx, base); err != nil {
		if apperror.IsConflict(err) {
			log.Info("base currency already present")
			return
		}
		log.Fatalw("failed to seed base currency", "error", err)
	}
	log.Infow("base currency created", "iso_code", isoCode)
}

func seedWarehouse(ctx context.Context, log *logger.Logger, svc *warehouse.Service) {
	wh := warehouse.NewWarehouse("MAIN", "Main warehouse")
	if err := svc.Create(ctx, wh); err != nil {
		if apperror.IsConflict(err) {
			log.Info("default warehouse already present")
			return
		}
		log.Fatalw("failed to seed warehouse", "error", err)
	}
	log.Infow("warehouse created", "code", wh.Code, "id", wh.ID)
}

func seedAdmin(ctx context.Context, log *logger.Logger, svc *auth.Service) {
	email := getEnv("LEDGER_ADMIN_EMAIL", "admin@stockledger.local")
	password := getEnv("LEDGER_ADMIN_PASSWORD", "")
	if password == "" {
		log.Warn("LEDGER_ADMIN_PASSWORD not set, skipping admin account")
		return
	}

	user, err := svc.Register(ctx, email, password, "Administrator", []string{"admin", "inventory"})
	if err != nil {
		if apperror.IsConflict(err) {
			log.Info("admin account already present")
			return
		}
		log.Fatalw("failed to seed admin account", "error", err)
	}
	log.Infow("admin account created", "email", user.Email, "id", user.ID)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
