// Package stock provides the per-(product, warehouse) balance store.
package stock

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Repository defines persistence operations for stock records.
type Repository interface {
	// Get returns the current record, or a zero-balance one when the key
	// has no movements yet.
	Get(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error)

	// GetForUpdate returns the record with a row lock, creating a
	// zero-balance row when absent. Must be called inside a transaction.
	GetForUpdate(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error)

	// Save writes the mutated record (quantity, timestamps).
	Save(ctx context.Context, rec *entity.StockRecord) error

	// SetMinimum updates the reorder threshold.
	SetMinimum(ctx context.Context, productID, warehouseID id.ID, min types.Quantity) error

	// ListByWarehouse returns records for a warehouse.
	ListByWarehouse(ctx context.Context, warehouseID id.ID, filter Filter) ([]*entity.StockRecord, error)

	// ListBelowMinimum returns records under their reorder threshold.
	ListBelowMinimum(ctx context.Context, warehouseID *id.ID) ([]*entity.StockRecord, error)
}

// Filter narrows ListByWarehouse queries.
type Filter struct {
	ProductIDs  []id.ID
	ExcludeZero bool
}
