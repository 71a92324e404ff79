package lots

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// fakeLotRepo is an in-memory Repository for engine tests. Row locking is
// a no-op; the engine runs single-threaded here.
type fakeLotRepo struct {
	lots      map[id.ID]*entity.Lot
	movements []*entity.LotMovement
}

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{lots: make(map[id.ID]*entity.Lot)}
}

func (r *fakeLotRepo) add(lot *entity.Lot) *entity.Lot {
	r.lots[lot.ID] = lot
	return lot
}

func (r *fakeLotRepo) CreateLot(ctx context.Context, lot *entity.Lot) error {
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLotRepo) SaveLot(ctx context.Context, lot *entity.Lot) error {
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLotRepo) GetLot(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.GetLotForUpdate(ctx, lotID)
}

func (r *fakeLotRepo) GetLotForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	lot, ok := r.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("lot", lotID)
	}
	return lot, nil
}

func (r *fakeLotRepo) FindByNumberForUpdate(ctx context.Context, productID, warehouseID id.ID, lotNumber string) (*entity.Lot, error) {
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID && lot.LotNumber == lotNumber {
			return lot, nil
		}
	}
	return nil, apperror.NewNotFound("lot", lotNumber)
}

func (r *fakeLotRepo) ListConsumableForUpdate(ctx context.Context, productID, warehouseID id.ID, includeExpired bool) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, lot := range r.lots {
		if lot.ProductID != productID || lot.WarehouseID != warehouseID {
			continue
		}
		if !lot.QuantityRemaining.IsPositive() {
			continue
		}
		if lot.Status == entity.LotActive || (includeExpired && lot.Status == entity.LotExpired) {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.ExpirationDate == nil && b.ExpirationDate == nil:
		case a.ExpirationDate == nil:
			return false
		case b.ExpirationDate == nil:
			return true
		case !a.ExpirationDate.Equal(*b.ExpirationDate):
			return a.ExpirationDate.Before(*b.ExpirationDate)
		}
		return a.ReceivedAt.Before(b.ReceivedAt)
	})
	return out, nil
}

func (r *fakeLotRepo) ListByKey(ctx context.Context, productID, warehouseID id.ID) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (r *fakeLotRepo) ListExpiring(ctx context.Context, warehouseID *id.ID, horizon time.Time) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, lot := range r.lots {
		if lot.Status != entity.LotActive || lot.ExpirationDate == nil {
			continue
		}
		if warehouseID != nil && lot.WarehouseID != *warehouseID {
			continue
		}
		if !lot.ExpirationDate.After(horizon) {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (r *fakeLotRepo) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, lot := range r.lots {
		if lot.Status == entity.LotActive && lot.IsExpiredAt(asOf) {
			out = append(out, lot)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeLotRepo) SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID {
			total += lot.QuantityRemaining
		}
	}
	return total, nil
}

func (r *fakeLotRepo) CreateLotMovements(ctx context.Context, movements []*entity.LotMovement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeLotRepo) ListMovementsByLot(ctx context.Context, lotID id.ID) ([]*entity.LotMovement, error) {
	var out []*entity.LotMovement
	for _, m := range r.movements {
		if m.LotID == lotID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeLotRepo) ListMovementsByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.LotMovement, error) {
	var out []*entity.LotMovement
	for _, m := range r.movements {
		if m.Document == ref {
			out = append(out, m)
		}
	}
	return out, nil
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func datePtr(t time.Time) *time.Time { return &t }

func testDoc() entity.DocumentRef {
	return entity.DocumentRef{Type: "PurchaseInvoice", ID: id.New()}
}

func makeLot(productID, warehouseID id.ID, number string, quantity float64, cost string, receivedAt time.Time, expiration *time.Time) *entity.Lot {
	lot := entity.NewLot(productID, warehouseID, number, qty(quantity), types.MustMoney(cost), testDoc())
	lot.ReceivedAt = receivedAt
	lot.ExpirationDate = expiration
	return lot
}

func TestConsumeFIFO_FEFOOrder(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	// L1 received first but expires later; L2 expires sooner so FEFO
	// takes it first despite the later receipt.
	l1 := repo.add(makeLot(productID, warehouseID, "L1", 5, "100", now.Add(-48*time.Hour), datePtr(now.Add(60*24*time.Hour))))
	l2 := repo.add(makeLot(productID, warehouseID, "L2", 4, "120", now.Add(-24*time.Hour), datePtr(now.Add(30*24*time.Hour))))

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty(7),
		Type:        entity.MovementSaleOut,
		Document:    testDoc(),
		Actor:       "tester",
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, l2.ID, result.Allocations[0].LotID)
	assert.Equal(t, qty(4), result.Allocations[0].Quantity)
	assert.Equal(t, l1.ID, result.Allocations[1].LotID)
	assert.Equal(t, qty(3), result.Allocations[1].Quantity)

	assert.Equal(t, qty(7), result.Consumed)
	assert.True(t, result.Shortfall.IsZero())

	assert.Equal(t, qty(0), l2.QuantityRemaining)
	assert.Equal(t, entity.LotExhausted, l2.Status)
	assert.Equal(t, qty(2), l1.QuantityRemaining)
	assert.Equal(t, entity.LotActive, l1.Status)

	// One mirror row per lot touched with consistent balances.
	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		assert.Equal(t, m.BalanceBefore+m.Quantity, m.BalanceAfter)
		assert.True(t, m.Quantity.IsNegative())
	}
}

func TestConsumeFIFO_NoExpirationGoesLast(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	noExp := repo.add(makeLot(productID, warehouseID, "NOEXP", 10, "50", now.Add(-72*time.Hour), nil))
	dated := repo.add(makeLot(productID, warehouseID, "DATED", 10, "55", now.Add(-1*time.Hour), datePtr(now.Add(90*24*time.Hour))))

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty(10),
		Type:        entity.MovementSaleOut,
		Document:    testDoc(),
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, dated.ID, result.Allocations[0].LotID)
	assert.Equal(t, qty(10), noExp.QuantityRemaining)
}

func TestConsumeFIFO_ShortfallRejectedWithoutMutation(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	lot := repo.add(makeLot(productID, warehouseID, "L1", 3, "100", time.Now().UTC(), nil))

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty(5),
		Type:        entity.MovementSaleOut,
		Document:    testDoc(),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientLotStock))

	// Plan is reported but nothing was applied.
	assert.Equal(t, qty(2), result.Shortfall)
	assert.Equal(t, qty(3), lot.QuantityRemaining)
	assert.Empty(t, repo.movements)
}

func TestConsumeFIFO_AcceptPartial(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	lot := repo.add(makeLot(productID, warehouseID, "L1", 3, "100", time.Now().UTC(), nil))

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:     productID,
		WarehouseID:   warehouseID,
		Quantity:      qty(5),
		Type:          entity.MovementSaleOut,
		Document:      testDoc(),
		AcceptPartial: true,
	})
	// The partial is applied; the shortfall is still signalled.
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientLotStock))

	assert.Equal(t, qty(3), result.Consumed)
	assert.Equal(t, qty(2), result.Shortfall)
	assert.Equal(t, qty(0), lot.QuantityRemaining)
	assert.Len(t, repo.movements, 1)
}

func TestConsumeFIFO_NothingAvailable(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:     id.New(),
		WarehouseID:   id.New(),
		Quantity:      qty(1),
		Type:          entity.MovementSaleOut,
		Document:      testDoc(),
		AcceptPartial: true,
	})
	// Even with AcceptPartial a zero allocation is an error.
	require.Error(t, err)
	assert.True(t, result.Consumed.IsZero())
	assert.Empty(t, repo.movements)
}

func TestConsumeFIFO_ExpiredExcludedByDefault(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	expired := makeLot(productID, warehouseID, "OLD", 5, "80", now.Add(-48*time.Hour), datePtr(now.Add(-24*time.Hour)))
	expired.Status = entity.LotExpired
	repo.add(expired)
	fresh := repo.add(makeLot(productID, warehouseID, "NEW", 5, "90", now, datePtr(now.Add(30*24*time.Hour))))

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		Quantity:    qty(5),
		Type:        entity.MovementSaleOut,
		Document:    testDoc(),
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, fresh.ID, result.Allocations[0].LotID)
	assert.Equal(t, qty(5), expired.QuantityRemaining)
}

func TestConsumeFIFO_AllowExpiredExceptionSale(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	expired := makeLot(productID, warehouseID, "OLD", 5, "80", now.Add(-48*time.Hour), datePtr(now.Add(-24*time.Hour)))
	expired.Status = entity.LotExpired
	repo.add(expired)

	result, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:    productID,
		WarehouseID:  warehouseID,
		Quantity:     qty(2),
		Type:         entity.MovementSaleOut,
		Document:     testDoc(),
		Reason:       "customer request",
		AllowExpired: true,
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.True(t, result.Allocations[0].Expired)

	require.Len(t, repo.movements, 1)
	assert.Contains(t, repo.movements[0].Reason, ExpiredSaleReason)
	assert.Contains(t, repo.movements[0].Reason, "customer request")
}

func TestConsumeFIFO_RejectsInboundType(t *testing.T) {
	engine := NewEngine(newFakeLotRepo())

	_, err := engine.ConsumeFIFO(context.Background(), ConsumeRequest{
		ProductID:   id.New(),
		WarehouseID: id.New(),
		Quantity:    qty(1),
		Type:        entity.MovementPurchaseIn,
		Document:    testDoc(),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidMovementType))
}

func TestReplenish_CreatesLot(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()
	exp := time.Now().UTC().AddDate(0, 6, 0)

	lot, err := engine.Replenish(context.Background(), ReplenishRequest{
		ProductID:      productID,
		WarehouseID:    warehouseID,
		LotNumber:      "B-001",
		Quantity:       qty(10),
		UnitCost:       types.MustMoney("150"),
		ExpirationDate: &exp,
		Type:           entity.MovementPurchaseIn,
		Document:       testDoc(),
		Actor:          "tester",
	})
	require.NoError(t, err)

	assert.Equal(t, qty(10), lot.QuantityRemaining)
	assert.Equal(t, qty(10), lot.InitialQuantity)
	assert.Equal(t, entity.LotActive, lot.Status)
	require.NotNil(t, lot.ExpirationDate)

	require.Len(t, repo.movements, 1)
	assert.Equal(t, qty(0), repo.movements[0].BalanceBefore)
	assert.Equal(t, qty(10), repo.movements[0].BalanceAfter)
}

func TestReplenish_WeightedAverageCost(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	existing := repo.add(makeLot(productID, warehouseID, "B-001", 10, "100", time.Now().UTC(), nil))

	lot, err := engine.Replenish(context.Background(), ReplenishRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		LotNumber:   "B-001",
		Quantity:    qty(5),
		UnitCost:    types.MustMoney("130"),
		Type:        entity.MovementPurchaseIn,
		Document:    testDoc(),
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, lot.ID)

	// (10*100 + 5*130) / 15 = 110
	assert.True(t, lot.UnitCost.Equal(types.MustMoney("110")), "unit cost = %s", lot.UnitCost)
	assert.Equal(t, qty(15), lot.QuantityRemaining)
	assert.Equal(t, qty(15), lot.InitialQuantity)
}

func TestReplenish_BlockedLotRejected(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	blocked := makeLot(productID, warehouseID, "B-001", 10, "100", time.Now().UTC(), nil)
	blocked.Status = entity.LotBlocked
	repo.add(blocked)

	_, err := engine.Replenish(context.Background(), ReplenishRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		LotNumber:   "B-001",
		Quantity:    qty(5),
		UnitCost:    types.MustMoney("100"),
		Type:        entity.MovementPurchaseIn,
		Document:    testDoc(),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeLotBlocked))
}

func TestReplenish_RevivesExhaustedLot(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	exhausted := makeLot(productID, warehouseID, "B-001", 0, "100", time.Now().UTC(), nil)
	exhausted.Status = entity.LotExhausted
	repo.add(exhausted)

	lot, err := engine.Replenish(context.Background(), ReplenishRequest{
		ProductID:   productID,
		WarehouseID: warehouseID,
		LotNumber:   "B-001",
		Quantity:    qty(4),
		UnitCost:    types.MustMoney("90"),
		Type:        entity.MovementReturnIn,
		Document:    testDoc(),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.LotActive, lot.Status)
	assert.Equal(t, qty(4), lot.QuantityRemaining)
	// All previous stock is gone; cost takes the incoming value.
	assert.True(t, lot.UnitCost.Equal(types.MustMoney("90")), "unit cost = %s", lot.UnitCost)
}

func TestTransferBetweenLots(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	source := repo.add(makeLot(productID, warehouseID, "SRC", 10, "100", time.Now().UTC(), nil))
	dest := repo.add(makeLot(productID, warehouseID, "DST", 5, "130", time.Now().UTC(), nil))

	err := engine.TransferBetweenLots(context.Background(), source.ID, dest.ID, qty(5), "repack", "tester")
	require.NoError(t, err)

	assert.Equal(t, qty(5), source.QuantityRemaining)
	assert.Equal(t, qty(10), dest.QuantityRemaining)
	// (5*130 + 5*100) / 10 = 115
	assert.True(t, dest.UnitCost.Equal(types.MustMoney("115")), "dest cost = %s", dest.UnitCost)

	require.Len(t, repo.movements, 2)
	out, in := repo.movements[0], repo.movements[1]
	assert.Equal(t, entity.MovementTransferOut, out.Type)
	require.NotNil(t, out.DestinationLotID)
	assert.Equal(t, dest.ID, *out.DestinationLotID)
	assert.Equal(t, entity.MovementTransferIn, in.Type)
	assert.Equal(t, out.Document, in.Document)
}

func TestTransferBetweenLots_Validation(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	ctx := context.Background()

	productID, warehouseID := id.New(), id.New()
	source := repo.add(makeLot(productID, warehouseID, "SRC", 10, "100", time.Now().UTC(), nil))
	otherKey := repo.add(makeLot(id.New(), warehouseID, "OTHER", 10, "100", time.Now().UTC(), nil))

	err := engine.TransferBetweenLots(ctx, source.ID, source.ID, qty(1), "", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	err = engine.TransferBetweenLots(ctx, source.ID, otherKey.ID, qty(1), "", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	dest := repo.add(makeLot(productID, warehouseID, "DST", 0, "100", time.Now().UTC(), nil))
	err = engine.TransferBetweenLots(ctx, source.ID, dest.ID, qty(20), "", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientLotStock))
	assert.Empty(t, repo.movements)
}

func TestSetBlocked_Transitions(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	ctx := context.Background()
	productID, warehouseID := id.New(), id.New()
	now := time.Now().UTC()

	active := repo.add(makeLot(productID, warehouseID, "A", 5, "100", now, nil))

	lot, err := engine.SetBlocked(ctx, active.ID, true)
	require.NoError(t, err)
	assert.Equal(t, entity.LotBlocked, lot.Status)

	lot, err = engine.SetBlocked(ctx, active.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.LotActive, lot.Status)

	// Unblocking an expired lot lands on Expired, not Active.
	expired := makeLot(productID, warehouseID, "E", 5, "100", now, datePtr(now.Add(-time.Hour)))
	expired.Status = entity.LotBlocked
	repo.add(expired)

	lot, err = engine.SetBlocked(ctx, expired.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.LotExpired, lot.Status)

	// Unblocking a drained lot lands on Exhausted.
	drained := makeLot(productID, warehouseID, "X", 0, "100", now, nil)
	drained.Status = entity.LotBlocked
	repo.add(drained)

	lot, err = engine.SetBlocked(ctx, drained.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entity.LotExhausted, lot.Status)
}

func TestKeyBalance(t *testing.T) {
	repo := newFakeLotRepo()
	engine := NewEngine(repo)
	productID, warehouseID := id.New(), id.New()

	repo.add(makeLot(productID, warehouseID, "A", 5, "100", time.Now().UTC(), nil))
	repo.add(makeLot(productID, warehouseID, "B", 2.5, "100", time.Now().UTC(), nil))
	repo.add(makeLot(productID, id.New(), "C", 100, "100", time.Now().UTC(), nil))

	total, err := engine.KeyBalance(context.Background(), productID, warehouseID)
	require.NoError(t, err)
	assert.Equal(t, qty(7.5), total)
}
