package lots

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// passthroughTxManager runs fn directly; the fake repo has no
// transactional semantics to honor.
type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func TestSweepExpired(t *testing.T) {
	repo := newFakeLotRepo()
	sweeper := NewSweeper(repo, passthroughTxManager{})
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	stale := repo.add(makeLot(productID, warehouseID, "STALE", 5, "100", now.Add(-72*time.Hour), datePtr(now.Add(-24*time.Hour))))
	fresh := repo.add(makeLot(productID, warehouseID, "FRESH", 5, "100", now, datePtr(now.Add(24*time.Hour))))
	undated := repo.add(makeLot(productID, warehouseID, "UNDATED", 5, "100", now, nil))
	blocked := makeLot(productID, warehouseID, "BLOCKED", 5, "100", now, datePtr(now.Add(-24*time.Hour)))
	blocked.Status = entity.LotBlocked
	repo.add(blocked)

	flipped, err := sweeper.SweepExpired(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, flipped, 1)
	assert.Equal(t, stale.ID, flipped[0].ID)
	assert.Equal(t, entity.LotExpired, stale.Status)
	assert.Equal(t, entity.LotActive, fresh.Status)
	assert.Equal(t, entity.LotActive, undated.Status)
	assert.Equal(t, entity.LotBlocked, blocked.Status)

	// A status flip writes no lot movement rows.
	assert.Empty(t, repo.movements)

	// Re-running finds nothing to do.
	flipped, err = sweeper.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, flipped)
}
