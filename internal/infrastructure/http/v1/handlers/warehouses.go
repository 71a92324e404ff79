package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// WarehouseHandler exposes the warehouse catalog.
type WarehouseHandler struct {
	*BaseHandler
	service *warehouse.Service
	audit   *postgres.AuditService
}

// NewWarehouseHandler creates a warehouse handler.
func NewWarehouseHandler(base *BaseHandler, service *warehouse.Service, audit *postgres.AuditService) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles POST /warehouses.
func (h *WarehouseHandler) Create(c *gin.Context) {
	var req dto.CreateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	wh := warehouse.NewWarehouse(req.Code, req.Name)
	wh.AllowNegativeStock = req.AllowNegativeStock
	wh.Address = req.Address
	if req.BranchID != nil {
		branchID, ok := h.ParseID(c, "branchId", *req.BranchID)
		if !ok {
			return
		}
		wh.BranchID = &branchID
	}

	if err := h.service.Create(c.Request.Context(), wh); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, wh.ID.String())
}

// Update handles PUT /warehouses/:id.
func (h *WarehouseHandler) Update(c *gin.Context) {
	whID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	var req dto.UpdateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	wh, err := h.service.GetByID(c.Request.Context(), whID)
	if err != nil {
		h.Error(c, err)
		return
	}

	wh.Name = req.Name
	wh.AllowNegativeStock = req.AllowNegativeStock
	wh.Address = req.Address
	if req.BranchID != nil {
		branchID, ok := h.ParseID(c, "branchId", *req.BranchID)
		if !ok {
			return
		}
		wh.BranchID = &branchID
	}

	if err := h.service.Update(c.Request.Context(), wh); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, wh)
}

// Deactivate handles DELETE /warehouses/:id.
// Warehouses are never hard deleted; history references them.
func (h *WarehouseHandler) Deactivate(c *gin.Context) {
	whID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	if err := h.service.Deactivate(c.Request.Context(), whID); err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.LogChange(c.Request.Context(), "warehouse", whID, postgres.AuditActionDeactivate, nil); err != nil {
			logger.Warn(c.Request.Context(), "audit write failed", "error", err)
		}
	}

	h.NoContent(c)
}

// Get handles GET /warehouses/:id.
func (h *WarehouseHandler) Get(c *gin.Context) {
	whID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	wh, err := h.service.GetByID(c.Request.Context(), whID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, wh)
}

// List handles GET /warehouses.
func (h *WarehouseHandler) List(c *gin.Context) {
	includeInactive := c.Query("includeInactive") == "true"

	result, err := h.service.List(c.Request.Context(), includeInactive)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(result))
}
