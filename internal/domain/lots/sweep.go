package lots

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/tx"
	"stockledger/pkg/logger"
)

const sweepBatchSize = 200

// Sweeper transitions active lots whose expiration date has passed to
// Expired. A status flip changes no quantity, so no lot movement row is
// written; the transition only removes the lot from normal selection.
type Sweeper struct {
	repo Repository
	txm  tx.Manager
}

// NewSweeper creates an expiration sweeper.
func NewSweeper(repo Repository, txm tx.Manager) *Sweeper {
	return &Sweeper{repo: repo, txm: txm}
}

// SweepExpired marks lots expired as of the given instant and returns
// the transitioned lots. Each lot is flipped in its own short
// transaction with a re-check under the row lock, so a concurrent
// consumption or block is never overwritten.
func (s *Sweeper) SweepExpired(ctx context.Context, asOf time.Time) ([]*entity.Lot, error) {
	candidates, err := s.repo.ListExpiredActive(ctx, asOf, sweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list expired lots: %w", err)
	}

	var flipped []*entity.Lot
	for _, candidate := range candidates {
		err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
			lot, err := s.repo.GetLotForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if lot.Status != entity.LotActive || !lot.IsExpiredAt(asOf) {
				return nil
			}
			lot.Status = entity.LotExpired
			lot.UpdatedAt = time.Now().UTC()
			if err := s.repo.SaveLot(ctx, lot); err != nil {
				return err
			}
			flipped = append(flipped, lot)
			logger.Info(ctx, "lot expired",
				"lot_id", lot.ID,
				"lot_number", lot.LotNumber,
				"product_id", lot.ProductID,
				"remaining", lot.QuantityRemaining,
			)
			return nil
		})
		if err != nil {
			logger.Warn(ctx, "expiration sweep: lot skipped",
				"lot_id", candidate.ID,
				"error", err,
			)
		}
	}

	return flipped, nil
}
