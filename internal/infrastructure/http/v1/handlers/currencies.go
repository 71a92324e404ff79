package handlers

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/catalogs/currency"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// CurrencyHandler exposes the currency catalog and rate table.
type CurrencyHandler struct {
	*BaseHandler
	service *currency.Service
	audit   *postgres.AuditService
}

// NewCurrencyHandler creates a currency handler.
func NewCurrencyHandler(base *BaseHandler, service *currency.Service, audit *postgres.AuditService) *CurrencyHandler {
	return &CurrencyHandler{BaseHandler: base, service: service, audit: audit}
}

// Create handles POST /currencies.
func (h *CurrencyHandler) Create(c *gin.Context) {
	var req dto.CreateCurrencyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	curr := currency.NewCurrency(req.ISOCode, req.Name)
	curr.Symbol = req.Symbol
	if req.DecimalPlaces != nil {
		curr.DecimalPlaces = *req.DecimalPlaces
	}

	if err := h.service.Create(c.Request.Context(), curr); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, curr.ID.String())
}

// List handles GET /currencies.
func (h *CurrencyHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(result))
}

// AddRate handles POST /currencies/:id/rates.
func (h *CurrencyHandler) AddRate(c *gin.Context) {
	currID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	var req dto.AddRateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rate, err := h.service.AddRate(c.Request.Context(), currID, req.Rate, req.EffectiveAt)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		if err := h.audit.LogChange(c.Request.Context(), "currency", currID, postgres.AuditActionRate, rate); err != nil {
			logger.Warn(c.Request.Context(), "audit write failed", "error", err)
		}
	}

	h.Created(c, rate.ID.String())
}

// ListRates handles GET /currencies/:id/rates.
func (h *CurrencyHandler) ListRates(c *gin.Context) {
	currID, ok := h.ParseID(c, "id", c.Param("id"))
	if !ok {
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	result, err := h.service.ListRates(c.Request.Context(), currID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.NewListResponse(result))
}
