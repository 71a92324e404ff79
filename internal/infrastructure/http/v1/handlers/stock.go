package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/dto"
)

// StockHandler exposes current balances.
type StockHandler struct {
	*BaseHandler
	store *stock.Store
	cache *cache.StockCache
}

// NewStockHandler creates a stock handler.
func NewStockHandler(base *BaseHandler, store *stock.Store, stockCache *cache.StockCache) *StockHandler {
	return &StockHandler{BaseHandler: base, store: store, cache: stockCache}
}

// Get handles GET /stock/:warehouseId/:productId.
func (h *StockHandler) Get(c *gin.Context) {
	warehouseID, ok := h.ParseID(c, "warehouseId", c.Param("warehouseId"))
	if !ok {
		return
	}
	productID, ok := h.ParseID(c, "productId", c.Param("productId"))
	if !ok {
		return
	}

	rec, err := h.store.GetOrCreate(c.Request.Context(), productID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, rec)
}

// ByWarehouse handles GET /stock/:warehouseId.
func (h *StockHandler) ByWarehouse(c *gin.Context) {
	warehouseID, ok := h.ParseID(c, "warehouseId", c.Param("warehouseId"))
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if h.cache != nil {
		if cached, hit := h.cache.GetWarehouseStock(ctx, warehouseID); hit {
			h.OK(c, dto.NewListResponse(cached))
			return
		}
	}

	records, err := h.store.WarehouseStock(ctx, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.cache != nil {
		h.cache.SetWarehouseStock(ctx, warehouseID, records)
	}
	h.OK(c, dto.NewListResponse(records))
}

// BelowMinimum handles GET /stock/below-minimum.
func (h *StockHandler) BelowMinimum(c *gin.Context) {
	var warehouseID *id.ID
	if raw := c.Query("warehouseId"); raw != "" {
		parsed, ok := h.ParseID(c, "warehouseId", raw)
		if !ok {
			return
		}
		warehouseID = &parsed
	}

	records, err := h.store.BelowMinimum(c.Request.Context(), warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(records))
}

// SetMinimum handles PUT /stock/minimum.
func (h *StockHandler) SetMinimum(c *gin.Context) {
	var req dto.SetMinimumRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, ok := h.ParseID(c, "productId", req.ProductID)
	if !ok {
		return
	}
	warehouseID, ok := h.ParseID(c, "warehouseId", req.WarehouseID)
	if !ok {
		return
	}

	if err := h.store.SetMinimum(c.Request.Context(), productID, warehouseID, req.MinQuantity); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "minimum updated")
}
