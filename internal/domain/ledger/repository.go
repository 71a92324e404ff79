// Package ledger records stock movements: the append-only journal that
// every balance change flows through.
package ledger

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Repository defines persistence operations for movements.
// Movement rows are write-once; there is no update or delete.
type Repository interface {
	// Create inserts the movement and fills its storage-assigned Seq.
	Create(ctx context.Context, m *entity.Movement) error

	GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error)

	// ListByKey returns movements of one (product, warehouse) key,
	// ordered by Seq descending.
	ListByKey(ctx context.Context, productID, warehouseID id.ID, filter Filter) ([]*entity.Movement, error)

	// ListByDocument returns all movements traced to a document.
	ListByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.Movement, error)

	// Turnover aggregates signed quantity per movement type over a period.
	Turnover(ctx context.Context, productID, warehouseID id.ID, from, to time.Time) (map[entity.MovementType]types.Quantity, error)
}

// Filter narrows movement history queries.
type Filter struct {
	Types  []entity.MovementType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
