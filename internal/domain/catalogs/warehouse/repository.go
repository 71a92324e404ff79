package warehouse

import (
	"context"

	"stockledger/internal/core/id"
)

// Repository defines persistence operations for the Warehouse catalog.
type Repository interface {
	Create(ctx context.Context, wh *Warehouse) error
	Update(ctx context.Context, wh *Warehouse) error
	GetByID(ctx context.Context, whID id.ID) (*Warehouse, error)
	GetByCode(ctx context.Context, code string) (*Warehouse, error)
	List(ctx context.Context, includeInactive bool) ([]*Warehouse, error)
}
