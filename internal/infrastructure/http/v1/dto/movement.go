package dto

import (
	"time"

	"stockledger/internal/core/types"
)

// RecordMovementRequest records one stock movement.
// Quantity is always positive; direction comes from Type.
type RecordMovementRequest struct {
	MovementID  string         `json:"movementId,omitempty"`
	ProductID   string         `json:"productId" binding:"required"`
	WarehouseID string         `json:"warehouseId" binding:"required"`
	Type        string         `json:"type" binding:"required"`
	Quantity    types.Quantity `json:"quantity" binding:"required"`

	DocumentType string `json:"documentType" binding:"required"`
	DocumentID   string `json:"documentId" binding:"required"`
	Reason       string `json:"reason,omitempty"`

	UnitCost   *types.Money `json:"unitCost,omitempty"`
	UnitPrice  *types.Money `json:"unitPrice,omitempty"`
	CurrencyID *string      `json:"currencyId,omitempty"`

	RegisterID  *string    `json:"registerId,omitempty"`
	ShiftNumber *int       `json:"shiftNumber,omitempty"`
	BusinessDay *time.Time `json:"businessDay,omitempty"`

	LotNumber        string     `json:"lotNumber,omitempty"`
	ExpirationDate   *time.Time `json:"expirationDate,omitempty"`
	ManufactureDate  *time.Time `json:"manufactureDate,omitempty"`
	IsInitialBalance bool       `json:"isInitialBalance,omitempty"`

	AllowExpired  bool `json:"allowExpired,omitempty"`
	AcceptPartial bool `json:"acceptPartial,omitempty"`
}

// MovementHistoryQuery filters the movement journal.
type MovementHistoryQuery struct {
	ProductID   string     `form:"productId" binding:"required"`
	WarehouseID string     `form:"warehouseId" binding:"required"`
	Types       []string   `form:"type"`
	From        *time.Time `form:"from" time_format:"2006-01-02"`
	To          *time.Time `form:"to" time_format:"2006-01-02"`
	Limit       int        `form:"limit"`
	Offset      int        `form:"offset"`
}

// TurnoverQuery asks for per-type totals over a period.
type TurnoverQuery struct {
	ProductID   string    `form:"productId" binding:"required"`
	WarehouseID string    `form:"warehouseId" binding:"required"`
	From        time.Time `form:"from" binding:"required" time_format:"2006-01-02"`
	To          time.Time `form:"to" binding:"required" time_format:"2006-01-02"`
}
