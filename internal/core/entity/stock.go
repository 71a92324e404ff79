package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// StockRecord is the current-balance projection for one
// (product, warehouse) pair. Its quantity always equals the running sum
// of applied movement deltas; it is mutated only through the ledger.
type StockRecord struct {
	// Dimensions
	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// MinQuantity is the reorder threshold for low-stock alerts
	MinQuantity types.Quantity `db:"min_quantity" json:"minQuantity"`

	LastMovementAt time.Time `db:"last_movement_at" json:"lastMovementAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockRecord creates a zero-balance record, as done lazily on the
// first movement for a key.
func NewStockRecord(productID, warehouseID id.ID) *StockRecord {
	now := time.Now().UTC()
	return &StockRecord{
		ProductID:      productID,
		WarehouseID:    warehouseID,
		Quantity:       0,
		LastMovementAt: now,
		UpdatedAt:      now,
	}
}

// BelowMinimum reports whether the balance dropped under the threshold.
func (r *StockRecord) BelowMinimum() bool {
	return r.MinQuantity.IsPositive() && r.Quantity < r.MinQuantity
}
