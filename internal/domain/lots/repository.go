// Package lots provides the lot (batch) engine: per-batch balances,
// FIFO/FEFO consumption and the lot movement mirror log.
package lots

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Repository defines persistence operations for lots and lot movements.
type Repository interface {
	CreateLot(ctx context.Context, lot *entity.Lot) error

	// SaveLot writes a mutated lot (quantity, cost, status).
	SaveLot(ctx context.Context, lot *entity.Lot) error

	GetLot(ctx context.Context, lotID id.ID) (*entity.Lot, error)

	// GetLotForUpdate returns the lot with a row lock.
	GetLotForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error)

	// FindByNumberForUpdate locates a lot by its number within a key,
	// with a row lock. Returns apperror.NewNotFound when absent.
	FindByNumberForUpdate(ctx context.Context, productID, warehouseID id.ID, lotNumber string) (*entity.Lot, error)

	// ListConsumableForUpdate returns lots with remaining quantity in
	// FEFO-within-FIFO order: expiration date ascending with nulls last,
	// then received_at ascending. Rows are locked. Blocked lots are
	// always excluded; expired ones only included when includeExpired.
	ListConsumableForUpdate(ctx context.Context, productID, warehouseID id.ID, includeExpired bool) ([]*entity.Lot, error)

	// ListByKey returns all lots for a (product, warehouse) pair.
	ListByKey(ctx context.Context, productID, warehouseID id.ID) ([]*entity.Lot, error)

	// ListExpiring returns active lots expiring on or before the horizon.
	ListExpiring(ctx context.Context, warehouseID *id.ID, horizon time.Time) ([]*entity.Lot, error)

	// ListExpiredActive returns active lots whose expiration has passed,
	// for the sweep to transition.
	ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*entity.Lot, error)

	// SumRemaining totals remaining quantity across a key's lots.
	SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error)

	// CreateLotMovements batch inserts mirror rows.
	CreateLotMovements(ctx context.Context, movements []*entity.LotMovement) error

	// ListMovementsByLot returns the movement history of one lot.
	ListMovementsByLot(ctx context.Context, lotID id.ID) ([]*entity.LotMovement, error)

	// ListMovementsByDocument returns lot movements traced to a document.
	ListMovementsByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.LotMovement, error)
}
