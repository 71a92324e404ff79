package stock

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Store provides balance operations over the stock repository.
// ApplyDelta must run inside the ledger's transaction and per-key lock;
// the repository row lock makes the read-modify-write serial per key.
type Store struct {
	repo Repository
}

// NewStore creates a new stock store.
func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

// GetOrCreate returns the record for a key, creating it lazily.
func (s *Store) GetOrCreate(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error) {
	return s.repo.Get(ctx, productID, warehouseID)
}

// ApplyDelta atomically applies a signed delta to the key's balance and
// returns the balance before and after. When the delta would drive the
// balance negative and allowNegative is false, nothing is written and
// InsufficientStock is returned.
func (s *Store) ApplyDelta(ctx context.Context, productID, warehouseID id.ID, delta types.Quantity, allowNegative bool) (before, after types.Quantity, err error) {
	rec, err := s.repo.GetForUpdate(ctx, productID, warehouseID)
	if err != nil {
		return 0, 0, fmt.Errorf("get stock record: %w", err)
	}

	before = rec.Quantity
	after = before + delta

	if after.IsNegative() && !allowNegative {
		return before, before, apperror.NewInsufficientStock(
			productID.String(),
			delta.Abs().Float64(),
			before.Float64(),
		)
	}

	now := time.Now().UTC()
	rec.Quantity = after
	rec.LastMovementAt = now
	rec.UpdatedAt = now

	if err := s.repo.Save(ctx, rec); err != nil {
		return 0, 0, fmt.Errorf("save stock record: %w", err)
	}

	return before, after, nil
}

// SetMinimum updates the reorder threshold for a key.
func (s *Store) SetMinimum(ctx context.Context, productID, warehouseID id.ID, min types.Quantity) error {
	if min.IsNegative() {
		return apperror.NewValidation("minimum threshold cannot be negative")
	}
	return s.repo.SetMinimum(ctx, productID, warehouseID, min)
}

// WarehouseStock returns all non-zero balances for a warehouse.
func (s *Store) WarehouseStock(ctx context.Context, warehouseID id.ID) ([]*entity.StockRecord, error) {
	return s.repo.ListByWarehouse(ctx, warehouseID, Filter{ExcludeZero: true})
}

// BelowMinimum returns records under their reorder threshold.
func (s *Store) BelowMinimum(ctx context.Context, warehouseID *id.ID) ([]*entity.StockRecord, error) {
	return s.repo.ListBelowMinimum(ctx, warehouseID)
}
