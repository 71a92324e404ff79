// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/catalogs/currency"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool    *pgxpool.Pool
	TxM     *postgres.TxManager
	Logger  *logger.Logger
	Version string

	JWTValidator middleware.JWTValidator
	AuthService  *auth.Service

	LedgerService    *ledger.Service
	StockStore       *stock.Store
	LotEngine        *lots.Engine
	LotRepo          lots.Repository
	WarehouseService *warehouse.Service
	CurrencyService  *currency.Service

	StockCache       *cache.StockCache
	Audit            *postgres.AuditService
	DefaultAlertDays int
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")
	{
		// Public auth endpoints
		if cfg.AuthService != nil {
			authHandler := handlers.NewAuthHandler(base, cfg.AuthService)
			v1.POST("/auth/login", authHandler.Login)

			adminAuth := v1.Group("/auth")
			adminAuth.Use(middleware.Auth(cfg.JWTValidator))
			adminAuth.POST("/register", middleware.RequireRole("admin"), authHandler.Register)
		}

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		registerLedgerRoutes(protected, base, cfg)
		registerCatalogRoutes(protected, base, cfg)
	}

	return router
}

// registerLedgerRoutes wires the journal, stock and lot endpoints.
func registerLedgerRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	movementHandler := handlers.NewMovementHandler(base, cfg.LedgerService, cfg.Audit, cfg.StockCache)
	movements := rg.Group("/movements")
	{
		movements.POST("", movementHandler.Record)
		movements.GET("", movementHandler.History)
		movements.GET("/turnover", movementHandler.Turnover)
		movements.GET("/by-document/:type/:id", movementHandler.ByDocument)
		movements.GET("/:id", movementHandler.Get)
	}

	stockHandler := handlers.NewStockHandler(base, cfg.StockStore, cfg.StockCache)
	stockGroup := rg.Group("/stock")
	{
		stockGroup.GET("/below-minimum", stockHandler.BelowMinimum)
		stockGroup.PUT("/minimum", stockHandler.SetMinimum)
		stockGroup.GET("/:warehouseId", stockHandler.ByWarehouse)
		stockGroup.GET("/:warehouseId/:productId", stockHandler.Get)
	}

	lotHandler := handlers.NewLotHandler(base, cfg.LotEngine, cfg.LotRepo, cfg.TxM, cfg.StockCache, cfg.Audit, cfg.DefaultAlertDays)
	lotsGroup := rg.Group("/lots")
	{
		lotsGroup.GET("", lotHandler.List)
		lotsGroup.GET("/near-expiry", lotHandler.NearExpiry)
		lotsGroup.POST("/transfer", middleware.RequireRole("inventory"), lotHandler.Transfer)
		lotsGroup.POST("/:id/block", middleware.RequireRole("inventory"), lotHandler.SetBlocked)
		lotsGroup.GET("/:id/movements", lotHandler.Movements)
	}
}

// registerCatalogRoutes wires warehouse and currency endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	whHandler := handlers.NewWarehouseHandler(base, cfg.WarehouseService, cfg.Audit)
	warehouses := rg.Group("/warehouses")
	{
		warehouses.POST("", middleware.RequireRole("admin"), whHandler.Create)
		warehouses.GET("", whHandler.List)
		warehouses.GET("/:id", whHandler.Get)
		warehouses.PUT("/:id", middleware.RequireRole("admin"), whHandler.Update)
		warehouses.DELETE("/:id", middleware.RequireRole("admin"), whHandler.Deactivate)
	}

	currHandler := handlers.NewCurrencyHandler(base, cfg.CurrencyService, cfg.Audit)
	currencies := rg.Group("/currencies")
	{
		currencies.POST("", middleware.RequireRole("admin"), currHandler.Create)
		currencies.GET("", currHandler.List)
		currencies.POST("/:id/rates", middleware.RequireRole("admin"), currHandler.AddRate)
		currencies.GET("/:id/rates", currHandler.ListRates)
	}
}
