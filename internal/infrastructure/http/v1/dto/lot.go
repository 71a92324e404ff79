package dto

import (
	"stockledger/internal/core/types"
)

// LotTransferRequest moves quantity between two lots of the same key.
type LotTransferRequest struct {
	SourceLotID      string         `json:"sourceLotId" binding:"required"`
	DestinationLotID string         `json:"destinationLotId" binding:"required"`
	Quantity         types.Quantity `json:"quantity" binding:"required"`
	Reason           string         `json:"reason,omitempty"`
}

// LotBlockRequest toggles the manual block on a lot.
type LotBlockRequest struct {
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// LotListQuery filters lot listings.
type LotListQuery struct {
	ProductID   string `form:"productId" binding:"required"`
	WarehouseID string `form:"warehouseId" binding:"required"`
}

// NearExpiryQuery filters the near-expiration report.
type NearExpiryQuery struct {
	WarehouseID *string `form:"warehouseId"`
	// Days overrides the default alert window
	Days int `form:"days"`
}
