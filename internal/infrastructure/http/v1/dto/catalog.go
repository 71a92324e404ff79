package dto

import (
	"time"

	"stockledger/internal/core/types"
)

// CreateWarehouseRequest creates a warehouse.
type CreateWarehouseRequest struct {
	Code               string  `json:"code" binding:"required"`
	Name               string  `json:"name" binding:"required"`
	BranchID           *string `json:"branchId,omitempty"`
	AllowNegativeStock bool    `json:"allowNegativeStock"`
	Address            *string `json:"address,omitempty"`
}

// UpdateWarehouseRequest updates warehouse fields.
type UpdateWarehouseRequest struct {
	Name               string  `json:"name" binding:"required"`
	BranchID           *string `json:"branchId,omitempty"`
	AllowNegativeStock bool    `json:"allowNegativeStock"`
	Address            *string `json:"address,omitempty"`
}

// CreateCurrencyRequest creates a currency.
type CreateCurrencyRequest struct {
	ISOCode       string  `json:"isoCode" binding:"required"`
	Name          string  `json:"name" binding:"required"`
	Symbol        *string `json:"symbol,omitempty"`
	DecimalPlaces *int    `json:"decimalPlaces,omitempty"`
}

// AddRateRequest appends an exchange rate row.
type AddRateRequest struct {
	Rate        types.Money `json:"rate" binding:"required"`
	EffectiveAt time.Time   `json:"effectiveAt" binding:"required"`
}

// SetMinimumRequest sets the reorder threshold for a key.
type SetMinimumRequest struct {
	ProductID   string         `json:"productId" binding:"required"`
	WarehouseID string         `json:"warehouseId" binding:"required"`
	MinQuantity types.Quantity `json:"minQuantity"`
}
