package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/lots"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// LotHandler exposes lot balances, history and direct lot operations.
type LotHandler struct {
	*BaseHandler
	engine *lots.Engine
	repo   lots.Repository
	txm    tx.Manager
	cache  *cache.StockCache
	audit  *postgres.AuditService

	// defaultAlertDays is the near-expiry window when the query gives none
	defaultAlertDays int
}

// NewLotHandler creates a lot handler.
func NewLotHandler(base *BaseHandler, engine *lots.Engine, repo lots.Repository, txm tx.Manager, stockCache *cache.StockCache, audit *postgres.AuditService, defaultAlertDays int) *LotHandler {
	if defaultAlertDays <= 0 {
		defaultAlertDays = 30
	}
	return &LotHandler{
		BaseHandler:      base,
		engine:           engine,
		repo:             repo,
		txm:              txm,
		cache:            stockCache,
		audit:            audit,
		defaultAlertDays: defaultAlertDays,
	}
}

// List handles GET /lots.
func (h *LotHandler) List(c *gin.Context) {
	var q dto.LotListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	productID, ok := h.ParseID(c, "productId", q.ProductID)
	if !ok {
		return
	}
	warehouseID, ok := h.ParseID(c, "warehouseId", q.WarehouseID)
	if !ok {
		return
	}

	result, err := h.engine.ListByKey(c.Request.Context(), productID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(result))
}

// NearExpiry handles GET /lots/near-expiry.
func (h *LotHandler) NearExpiry(c *gin.Context) {
	var q dto.NearExpiryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	days := q.Days
	if days <= 0 {
		days = h.defaultAlertDays
	}
	horizon := time.Now().UTC().AddDate(0, 0, days)

	var warehouseID *id.ID
	if q.WarehouseID != nil {
		parsed, ok := h.ParseID(c, "warehouseId", *q.WarehouseID)
		if !ok {
			return
		}
		warehouseID = &parsed
	}
	scope := nearExpiryScope(warehouseID, days)

	ctx := c.Request.Context()
	if h.cache != nil {
		if cached, hit := h.cache.GetExpiringLots(ctx, scope); hit {
			h.OK(c, dto.NewListResponse(cached))
			return
		}
	}

	result, err := h.engine.ListExpiring(ctx, warehouseID, horizon)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.cache != nil {
		h.cache.SetExpiringLots(ctx, scope, result)
	}
	h.OK(c, dto.NewListResponse(result))
}

// nearExpiryScope keys the cache on both the warehouse filter and the
// window, so queries with different horizons never share a snapshot.
func nearExpiryScope(warehouseID *id.ID, days int) string {
	scope := "all"
	if warehouseID != nil {
		scope = warehouseID.String()
	}
	return fmt.Sprintf("%s:%d", scope, days)
}

// Transfer handles POST /lots/transfer.
func (h *LotHandler) Transfer(c *gin.Context) {
	var req dto.LotTransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sourceID, ok := h.ParseID(c, "sourceLotId", req.SourceLotID)
	if !ok {
		return
	}
	destID, ok := h.ParseID(c, "destinationLotId", req.DestinationLotID)
	if !ok {
		return
	}

	actor := h.GetUserID(c)
	err := h.txm.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
		return h.engine.TransferBetweenLots(ctx, sourceID, destID, req.Quantity, req.Reason, actor)
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "transfer applied")
}

// SetBlocked handles POST /lots/:id/block.
func (h *LotHandler) SetBlocked(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	var req dto.LotBlockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	var updated any
	err := h.txm.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
		lot, err := h.engine.SetBlocked(ctx, lotID, req.Blocked)
		if err != nil {
			return err
		}
		updated = lot
		return nil
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		action := postgres.AuditActionUnblock
		if req.Blocked {
			action = postgres.AuditActionBlock
		}
		if err := h.audit.LogChange(c.Request.Context(), "lot", lotID, action, updated); err != nil {
			logger.Warn(c.Request.Context(), "audit write failed", "error", err)
		}
	}

	h.OK(c, updated)
}

// Movements handles GET /lots/:id/movements.
func (h *LotHandler) Movements(c *gin.Context) {
	lotID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	result, err := h.repo.ListMovementsByLot(c.Request.Context(), lotID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(result))
}
