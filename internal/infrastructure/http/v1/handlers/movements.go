package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// stockInvalidator drops cached warehouse snapshots after a write.
type stockInvalidator interface {
	InvalidateWarehouse(ctx context.Context, warehouseID id.ID)
}

// MovementHandler exposes the movement journal.
type MovementHandler struct {
	*BaseHandler
	service *ledger.Service
	audit   *postgres.AuditService
	cache   stockInvalidator
}

// NewMovementHandler creates a movement handler. The cache may be nil.
func NewMovementHandler(base *BaseHandler, service *ledger.Service, audit *postgres.AuditService, stockCache *cache.StockCache) *MovementHandler {
	h := &MovementHandler{BaseHandler: base, service: service, audit: audit}
	if stockCache != nil {
		h.cache = stockCache
	}
	return h
}

// Record handles POST /movements.
func (h *MovementHandler) Record(c *gin.Context) {
	var req dto.RecordMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	domainReq, ok := h.toDomain(c, req)
	if !ok {
		return
	}

	result, err := h.service.RecordMovement(c.Request.Context(), domainReq)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.afterRecord(c.Request.Context(), result)
	h.OK(c, result)
}

// afterRecord runs the write side effects: the audit entry and the
// stock snapshot invalidation. A replayed movement changed nothing, so
// it triggers neither.
func (h *MovementHandler) afterRecord(ctx context.Context, result *ledger.Result) {
	if result.Replayed {
		return
	}
	if h.audit != nil {
		if err := h.audit.LogChange(ctx, "movement", result.Movement.ID, postgres.AuditActionRecord, result); err != nil {
			logger.Warn(ctx, "audit write failed", "error", err)
		}
	}
	if h.cache != nil {
		h.cache.InvalidateWarehouse(ctx, result.Movement.WarehouseID)
	}
}

func (h *MovementHandler) toDomain(c *gin.Context, req dto.RecordMovementRequest) (ledger.Request, bool) {
	out := ledger.Request{
		Type:             entity.MovementType(req.Type),
		Quantity:         req.Quantity,
		Reason:           req.Reason,
		UnitCost:         req.UnitCost,
		UnitPrice:        req.UnitPrice,
		LotNumber:        req.LotNumber,
		ExpirationDate:   req.ExpirationDate,
		ManufactureDate:  req.ManufactureDate,
		IsInitialBalance: req.IsInitialBalance,
		AllowExpired:     req.AllowExpired,
		AcceptPartial:    req.AcceptPartial,
	}

	var ok bool
	if out.ProductID, ok = h.ParseID(c, "productId", req.ProductID); !ok {
		return out, false
	}
	if out.WarehouseID, ok = h.ParseID(c, "warehouseId", req.WarehouseID); !ok {
		return out, false
	}
	docID, ok := h.ParseID(c, "documentId", req.DocumentID)
	if !ok {
		return out, false
	}
	out.Document = entity.DocumentRef{Type: req.DocumentType, ID: docID}

	if req.MovementID != "" {
		if out.MovementID, ok = h.ParseID(c, "movementId", req.MovementID); !ok {
			return out, false
		}
	}
	if req.CurrencyID != nil {
		currID, ok := h.ParseID(c, "currencyId", *req.CurrencyID)
		if !ok {
			return out, false
		}
		out.CurrencyID = &currID
	}
	if req.RegisterID != nil {
		regID, ok := h.ParseID(c, "registerId", *req.RegisterID)
		if !ok {
			return out, false
		}
		out.Session.RegisterID = &regID
	}
	out.Session.ShiftNumber = req.ShiftNumber
	out.Session.BusinessDay = req.BusinessDay

	return out, true
}

// Get handles GET /movements/:id.
func (h *MovementHandler) Get(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	movement, err := h.service.GetMovement(c.Request.Context(), movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, movement)
}

// History handles GET /movements.
func (h *MovementHandler) History(c *gin.Context) {
	var q dto.MovementHistoryQuery
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

	filter := ledger.Filter{
		From:   q.From,
		To:     q.To,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, t := range q.Types {
		filter.Types = append(filter.Types, entity.MovementType(t))
	}

	movements, err := h.service.History(c.Request.Context(), productID, warehouseID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(movements))
}

// ByDocument handles GET /movements/by-document/:type/:id.
func (h *MovementHandler) ByDocument(c *gin.Context) {
	docID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}
	ref := entity.DocumentRef{Type: c.Param("type"), ID: docID}

	movements, err := h.service.ByDocument(c.Request.Context(), ref)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(movements))
}

// Turnover handles GET /movements/turnover.
func (h *MovementHandler) Turnover(c *gin.Context) {
	var q dto.TurnoverQuery
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

	turnover, err := h.service.Turnover(c.Request.Context(), productID, warehouseID, q.From, q.To)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, turnover)
}
