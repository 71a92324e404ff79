package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/product"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/domain/valuation"
)

// --- fakes ---

type fakeMovementRepo struct {
	mu      sync.Mutex
	rows    []*entity.Movement
	byID    map[id.ID]*entity.Movement
	nextSeq int64
}

func newFakeMovementRepo() *fakeMovementRepo {
	return &fakeMovementRepo{byID: make(map[id.ID]*entity.Movement)}
}

func (r *fakeMovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	m.Seq = r.nextSeq
	r.rows = append(r.rows, m)
	r.byID[m.ID] = m
	return nil
}

func (r *fakeMovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[movementID]; ok {
		return m, nil
	}
	return nil, apperror.NewNotFound("movement", movementID)
}

func (r *fakeMovementRepo) ListByKey(ctx context.Context, productID, warehouseID id.ID, filter Filter) ([]*entity.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Movement
	for _, m := range r.rows {
		if m.ProductID == productID && m.WarehouseID == warehouseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

func (r *fakeMovementRepo) ListByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Movement
	for _, m := range r.rows {
		if m.Document == ref {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMovementRepo) Turnover(ctx context.Context, productID, warehouseID id.ID, from, to time.Time) (map[entity.MovementType]types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[entity.MovementType]types.Quantity)
	for _, m := range r.rows {
		if m.ProductID == productID && m.WarehouseID == warehouseID &&
			!m.CreatedAt.Before(from) && m.CreatedAt.Before(to) {
			out[m.Type] += m.Quantity
		}
	}
	return out, nil
}

type stockKey struct{ p, w id.ID }

type fakeStockRepo struct {
	mu      sync.Mutex
	records map[stockKey]*entity.StockRecord
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{records: make(map[stockKey]*entity.StockRecord)}
}

func (r *fakeStockRepo) Get(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error) {
	return r.GetForUpdate(ctx, productID, warehouseID)
}

func (r *fakeStockRepo) GetForUpdate(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := stockKey{productID, warehouseID}
	if rec, ok := r.records[k]; ok {
		return rec, nil
	}
	rec := entity.NewStockRecord(productID, warehouseID)
	r.records[k] = rec
	return rec, nil
}

func (r *fakeStockRepo) Save(ctx context.Context, rec *entity.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[stockKey{rec.ProductID, rec.WarehouseID}] = rec
	return nil
}

func (r *fakeStockRepo) SetMinimum(ctx context.Context, productID, warehouseID id.ID, min types.Quantity) error {
	rec, _ := r.GetForUpdate(ctx, productID, warehouseID)
	rec.MinQuantity = min
	return nil
}

func (r *fakeStockRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.Filter) ([]*entity.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.StockRecord
	for _, rec := range r.records {
		if rec.WarehouseID != warehouseID {
			continue
		}
		if filter.ExcludeZero && rec.Quantity.IsZero() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fakeStockRepo) ListBelowMinimum(ctx context.Context, warehouseID *id.ID) ([]*entity.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.StockRecord
	for _, rec := range r.records {
		if warehouseID != nil && rec.WarehouseID != *warehouseID {
			continue
		}
		if rec.BelowMinimum() {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeLotsRepo struct {
	mu        sync.Mutex
	lots      map[id.ID]*entity.Lot
	movements []*entity.LotMovement
}

func newFakeLotsRepo() *fakeLotsRepo {
	return &fakeLotsRepo{lots: make(map[id.ID]*entity.Lot)}
}

func (r *fakeLotsRepo) add(lot *entity.Lot) *entity.Lot {
	r.lots[lot.ID] = lot
	return lot
}

func (r *fakeLotsRepo) CreateLot(ctx context.Context, lot *entity.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLotsRepo) SaveLot(ctx context.Context, lot *entity.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.ID] = lot
	return nil
}

func (r *fakeLotsRepo) GetLot(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.GetLotForUpdate(ctx, lotID)
}

func (r *fakeLotsRepo) GetLotForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lot, ok := r.lots[lotID]; ok {
		return lot, nil
	}
	return nil, apperror.NewNotFound("lot", lotID)
}

func (r *fakeLotsRepo) FindByNumberForUpdate(ctx context.Context, productID, warehouseID id.ID, lotNumber string) (*entity.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID && lot.LotNumber == lotNumber {
			return lot, nil
		}
	}
	return nil, apperror.NewNotFound("lot", lotNumber)
}

func (r *fakeLotsRepo) ListConsumableForUpdate(ctx context.Context, productID, warehouseID id.ID, includeExpired bool) ([]*entity.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (r *fakeLotsRepo) ListByKey(ctx context.Context, productID, warehouseID id.ID) ([]*entity.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Lot
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID {
			out = append(out, lot)
		}
	}
	return out, nil
}

func (r *fakeLotsRepo) ListExpiring(ctx context.Context, warehouseID *id.ID, horizon time.Time) ([]*entity.Lot, error) {
	return nil, nil
}

func (r *fakeLotsRepo) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*entity.Lot, error) {
	return nil, nil
}

func (r *fakeLotsRepo) SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total types.Quantity
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID {
			total += lot.QuantityRemaining
		}
	}
	return total, nil
}

func (r *fakeLotsRepo) CreateLotMovements(ctx context.Context, movements []*entity.LotMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeLotsRepo) ListMovementsByLot(ctx context.Context, lotID id.ID) ([]*entity.LotMovement, error) {
	return nil, nil
}

func (r *fakeLotsRepo) ListMovementsByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.LotMovement, error) {
	return nil, nil
}

type fakeProducts struct {
	byID map[id.ID]*product.Product
}

func (f *fakeProducts) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	if p, ok := f.byID[productID]; ok {
		return p, nil
	}
	return nil, apperror.NewNotFound("product", productID)
}

type fakeWarehouses struct {
	byID map[id.ID]*warehouse.Warehouse
}

func (f *fakeWarehouses) GetByID(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	if w, ok := f.byID[warehouseID]; ok {
		return w, nil
	}
	return nil, apperror.NewNotFound("warehouse", warehouseID)
}

// fakePricer converts at a fixed rate, or fails when rate is nil.
type fakePricer struct {
	rate *types.Money
}

func (p *fakePricer) Price(ctx context.Context, amount types.Money, currencyID id.ID, effectiveDate time.Time) (*valuation.Snapshot, error) {
	if p.rate == nil {
		return nil, apperror.NewValuationUnavailable(currencyID.String(), effectiveDate.Format(time.DateOnly))
	}
	return &valuation.Snapshot{
		AmountSource: amount,
		AmountBase:   amount.Mul(*p.rate),
		ExchangeRate: *p.rate,
		CurrencyID:   currencyID,
	}, nil
}

type passthroughTxManager struct{}

func (passthroughTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// blockingTxManager holds each transaction open until released, to
// exercise the per-key lock.
type blockingTxManager struct {
	entered chan struct{}
	release chan struct{}
}

func (m *blockingTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.entered <- struct{}{}
	<-m.release
	return fn(ctx)
}

// --- harness ---

type testEnv struct {
	service   *Service
	movements *fakeMovementRepo
	stocks    *fakeStockRepo
	lotRepo   *fakeLotsRepo
	pricer    *fakePricer

	product   *product.Product
	warehouse *warehouse.Warehouse
}

func newEnv() *testEnv {
	prod := &product.Product{ID: id.New(), Code: "P-1", Name: "Widget"}
	wh := warehouse.NewWarehouse("MAIN", "Main warehouse")

	env := &testEnv{
		movements: newFakeMovementRepo(),
		stocks:    newFakeStockRepo(),
		lotRepo:   newFakeLotsRepo(),
		pricer:    &fakePricer{},
		product:   prod,
		warehouse: wh,
	}
	env.service = NewService(
		env.movements,
		stock.NewStore(env.stocks),
		lots.NewEngine(env.lotRepo),
		&fakeProducts{byID: map[id.ID]*product.Product{prod.ID: prod}},
		&fakeWarehouses{byID: map[id.ID]*warehouse.Warehouse{wh.ID: wh}},
		env.pricer,
		passthroughTxManager{},
		time.Second,
	)
	return env
}

func (e *testEnv) request(movementType entity.MovementType, quantity float64) Request {
	return Request{
		ProductID:   e.product.ID,
		WarehouseID: e.warehouse.ID,
		Type:        movementType,
		Quantity:    types.NewQuantityFromFloat64(quantity),
		Document:    entity.DocumentRef{Type: "TestDoc", ID: id.New()},
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func moneyPtr(s string) *types.Money {
	m := types.MustMoney(s)
	return &m
}

// --- tests ---

func TestRecordMovement_BalanceChain(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	first, err := env.service.RecordMovement(ctx, env.request(entity.MovementPurchaseIn, 10))
	require.NoError(t, err)
	assert.Equal(t, qty(0), first.Movement.BalanceBefore)
	assert.Equal(t, qty(10), first.Movement.BalanceAfter)
	assert.Equal(t, qty(10), first.Movement.Quantity)
	assert.Equal(t, int64(1), first.Movement.Seq)

	second, err := env.service.RecordMovement(ctx, env.request(entity.MovementSaleOut, 4))
	require.NoError(t, err)
	// balance_before of movement N equals balance_after of movement N-1.
	assert.Equal(t, first.Movement.BalanceAfter, second.Movement.BalanceBefore)
	assert.Equal(t, qty(6), second.Movement.BalanceAfter)
	assert.Equal(t, qty(-4), second.Movement.Quantity)
	assert.Equal(t, int64(2), second.Movement.Seq)

	rec, err := env.stocks.Get(ctx, env.product.ID, env.warehouse.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(6), rec.Quantity)
}

func TestRecordMovement_InsufficientStock(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	_, err := env.service.RecordMovement(ctx, env.request(entity.MovementSaleOut, 5))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	// Nothing was journaled.
	assert.Empty(t, env.movements.rows)
	rec, _ := env.stocks.Get(ctx, env.product.ID, env.warehouse.ID)
	assert.True(t, rec.Quantity.IsZero())
}

func TestRecordMovement_NegativeStockOverride(t *testing.T) {
	env := newEnv()
	env.warehouse.AllowNegativeStock = true
	ctx := context.Background()

	result, err := env.service.RecordMovement(ctx, env.request(entity.MovementSaleOut, 5))
	require.NoError(t, err)
	assert.Equal(t, qty(-5), result.Movement.BalanceAfter)
}

func TestRecordMovement_AdjustmentSkipsNegativeCheck(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	// Adjustments are corrections and may drive the balance negative
	// even without the warehouse override.
	result, err := env.service.RecordMovement(ctx, env.request(entity.MovementAdjustmentOut, 3))
	require.NoError(t, err)
	assert.Equal(t, qty(-3), result.Movement.BalanceAfter)
}

func TestRecordMovement_IdempotentReplay(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	req := env.request(entity.MovementPurchaseIn, 10)
	req.MovementID = id.New()

	first, err := env.service.RecordMovement(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := env.service.RecordMovement(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Movement.ID, second.Movement.ID)

	// No second row, no double-applied balance.
	assert.Len(t, env.movements.rows, 1)
	rec, _ := env.stocks.Get(ctx, env.product.ID, env.warehouse.ID)
	assert.Equal(t, qty(10), rec.Quantity)
}

func TestRecordMovement_Validation(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*Request)
		wantCode string
	}{
		{"unknown type", func(r *Request) { r.Type = "teleport" }, apperror.CodeInvalidMovementType},
		{"zero quantity", func(r *Request) { r.Quantity = 0 }, apperror.CodeValidation},
		{"negative quantity", func(r *Request) { r.Quantity = qty(-1) }, apperror.CodeValidation},
		{"missing product", func(r *Request) { r.ProductID = id.Nil() }, apperror.CodeValidation},
		{"missing warehouse", func(r *Request) { r.WarehouseID = id.Nil() }, apperror.CodeValidation},
		{"missing document", func(r *Request) { r.Document = entity.DocumentRef{} }, apperror.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.request(entity.MovementPurchaseIn, 1)
			tt.mutate(&req)
			_, err := env.service.RecordMovement(ctx, req)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestRecordMovement_BlockedProduct(t *testing.T) {
	env := newEnv()
	env.product.Blocked = true

	_, err := env.service.RecordMovement(context.Background(), env.request(entity.MovementPurchaseIn, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeProductBlocked))
}

func TestRecordMovement_InactiveWarehouse(t *testing.T) {
	env := newEnv()
	env.warehouse.Deactivate()

	_, err := env.service.RecordMovement(context.Background(), env.request(entity.MovementPurchaseIn, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeWarehouseInactive))
}

func TestRecordMovement_AllowExpiredGuard(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	// Product does not allow exception sales.
	req := env.request(entity.MovementSaleOut, 1)
	req.AllowExpired = true
	_, err := env.service.RecordMovement(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))

	// Allowed on the product, but only for sales.
	env.product.AllowsSaleWhenExpired = true
	req = env.request(entity.MovementAdjustmentOut, 1)
	req.AllowExpired = true
	_, err = env.service.RecordMovement(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))
}

func TestRecordMovement_LotProductRoundTrip(t *testing.T) {
	env := newEnv()
	env.product.ControlsLot = true
	ctx := context.Background()

	in := env.request(entity.MovementPurchaseIn, 10)
	in.LotNumber = "B-001"
	in.UnitCost = moneyPtr("100")

	inResult, err := env.service.RecordMovement(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, qty(10), inResult.Movement.BalanceAfter)

	out := env.request(entity.MovementSaleOut, 4)
	outResult, err := env.service.RecordMovement(ctx, out)
	require.NoError(t, err)

	assert.Equal(t, qty(6), outResult.Movement.BalanceAfter)
	require.Len(t, outResult.Allocations, 1)
	assert.Equal(t, "B-001", outResult.Allocations[0].LotNumber)
	assert.Equal(t, qty(4), outResult.Allocations[0].Quantity)

	// Lot balance and stock balance stay in step.
	total, err := env.lotRepo.SumRemaining(ctx, env.product.ID, env.warehouse.ID)
	require.NoError(t, err)
	assert.Equal(t, qty(6), total)

	// Without a cost hint, the snapshot carries the weighted lot cost.
	require.NotNil(t, outResult.Movement.UnitCost)
	assert.True(t, outResult.Movement.UnitCost.Equal(types.MustMoney("100")))
}

func TestRecordMovement_LotInboundRequiresLotNumber(t *testing.T) {
	env := newEnv()
	env.product.ControlsLot = true

	req := env.request(entity.MovementPurchaseIn, 10)
	_, err := env.service.RecordMovement(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Empty(t, env.movements.rows)
}

func TestRecordMovement_LotPartial(t *testing.T) {
	env := newEnv()
	env.product.ControlsLot = true
	ctx := context.Background()

	in := env.request(entity.MovementPurchaseIn, 3)
	in.LotNumber = "B-001"
	in.UnitCost = moneyPtr("100")
	_, err := env.service.RecordMovement(ctx, in)
	require.NoError(t, err)

	// Without AcceptPartial the whole movement fails and nothing changes.
	out := env.request(entity.MovementSaleOut, 5)
	_, err = env.service.RecordMovement(ctx, out)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientLotStock))
	assert.Len(t, env.movements.rows, 1)

	// With AcceptPartial the covered part is recorded.
	out.AcceptPartial = true
	result, err := env.service.RecordMovement(ctx, out)
	require.NoError(t, err)

	assert.Equal(t, qty(5), result.RequestedQuantity)
	assert.Equal(t, qty(3), result.RealizedQuantity)
	assert.Equal(t, qty(2), result.Shortfall)
	assert.Equal(t, qty(-3), result.Movement.Quantity)
	assert.Equal(t, qty(0), result.Movement.BalanceAfter)
}

func TestRecordMovement_ValuationSnapshot(t *testing.T) {
	env := newEnv()
	env.pricer.rate = moneyPtr("7300")
	ctx := context.Background()

	currencyID := id.New()
	req := env.request(entity.MovementPurchaseIn, 10)
	req.UnitCost = moneyPtr("10")
	req.UnitPrice = moneyPtr("15")
	req.CurrencyID = &currencyID

	result, err := env.service.RecordMovement(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.ValuationMissing)

	snap := result.Movement.ValuationSnapshot
	require.NotNil(t, snap.ExchangeRate)
	assert.True(t, snap.ExchangeRate.Equal(types.MustMoney("7300")))
	require.NotNil(t, snap.UnitCostBase)
	assert.True(t, snap.UnitCostBase.Equal(types.MustMoney("73000")))
	require.NotNil(t, snap.UnitPriceBase)
	assert.True(t, snap.UnitPriceBase.Equal(types.MustMoney("109500")))
}

func TestRecordMovement_MissingRateNotFatal(t *testing.T) {
	env := newEnv()
	// pricer.rate stays nil: every Price call fails
	ctx := context.Background()

	currencyID := id.New()
	req := env.request(entity.MovementPurchaseIn, 10)
	req.UnitCost = moneyPtr("10")
	req.CurrencyID = &currencyID

	result, err := env.service.RecordMovement(ctx, req)
	require.NoError(t, err)

	assert.True(t, result.ValuationMissing)
	snap := result.Movement.ValuationSnapshot
	require.NotNil(t, snap.UnitCost)
	assert.Nil(t, snap.ExchangeRate)
	assert.Nil(t, snap.UnitCostBase)
}

func TestRecordMovement_NoCurrencyNoPricing(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	req := env.request(entity.MovementPurchaseIn, 10)
	req.UnitCost = moneyPtr("10")

	result, err := env.service.RecordMovement(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.ValuationMissing)
	assert.Nil(t, result.Movement.ExchangeRate)
	assert.Nil(t, result.Movement.UnitCostBase)
}

func TestRecordMovement_ConcurrentKeyConflict(t *testing.T) {
	env := newEnv()
	blocker := &blockingTxManager{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	env.service.txm = blocker
	env.service.lockTimeout = 50 * time.Millisecond
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := env.service.RecordMovement(ctx, env.request(entity.MovementPurchaseIn, 1))
		errCh <- err
	}()

	// Wait until the first request holds the key lock inside its tx.
	<-blocker.entered

	_, err := env.service.RecordMovement(ctx, env.request(entity.MovementPurchaseIn, 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConcurrentModification))

	close(blocker.release)
	require.NoError(t, <-errCh)
}

func TestRecordMovement_ParallelSalesDrainToZero(t *testing.T) {
	env := newEnv()
	ctx := context.Background()

	_, err := env.service.RecordMovement(ctx, env.request(entity.MovementPurchaseIn, 50))
	require.NoError(t, err)

	const attempts = 100
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.RecordMovement(ctx, env.request(entity.MovementSaleOut, 1))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.IsCode(err, apperror.CodeInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Exactly the available quantity is sold, regardless of interleaving.
	assert.Equal(t, 50, succeeded)
	assert.Equal(t, 50, rejected)

	rec, err := env.stocks.Get(ctx, env.product.ID, env.warehouse.ID)
	require.NoError(t, err)
	assert.True(t, rec.Quantity.IsZero())

	// The purchase plus one row per successful sale, nothing for rejects.
	assert.Len(t, env.movements.rows, 51)
}
