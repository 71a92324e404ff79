package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/keylock"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/catalogs/product"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/domain/lots"
	"stockledger/internal/domain/stock"
	"stockledger/internal/domain/valuation"
	"stockledger/pkg/logger"
)

// WarehouseReader is the catalog port the ledger needs.
// warehouse.Service satisfies it.
type WarehouseReader interface {
	GetByID(ctx context.Context, warehouseID id.ID) (*warehouse.Warehouse, error)
}

// Pricer freezes amounts into base-currency snapshots.
// valuation.Adapter satisfies it.
type Pricer interface {
	Price(ctx context.Context, amount types.Money, currencyID id.ID, effectiveDate time.Time) (*valuation.Snapshot, error)
}

// Request describes one movement to record. Quantity is always positive;
// the sign is derived from Type.
type Request struct {
	// MovementID enables idempotent retries: a second request with the
	// same ID replays the stored movement instead of recording again.
	MovementID id.ID

	ProductID   id.ID
	WarehouseID id.ID
	Type        entity.MovementType
	Quantity    types.Quantity

	Document entity.DocumentRef
	Reason   string

	// Valuation hints. CurrencyID selects the pricing currency; without
	// it the movement is recorded unpriced.
	UnitCost   *types.Money
	UnitPrice  *types.Money
	CurrencyID *id.ID

	Session entity.SessionContext

	// Lot fields, used when the product controls lots
	LotNumber        string
	ExpirationDate   *time.Time
	ManufactureDate  *time.Time
	IsInitialBalance bool

	// AllowExpired permits an exception sale from expired lots. Only
	// honored for sale movements on products flagged for it.
	AllowExpired bool

	// AcceptPartial records whatever quantity eligible lots can cover
	// instead of failing on shortfall.
	AcceptPartial bool
}

// Result reports the recorded movement and how the request was satisfied.
type Result struct {
	Movement *entity.Movement

	RequestedQuantity types.Quantity
	RealizedQuantity  types.Quantity
	Shortfall         types.Quantity

	// Allocations lists the lots consumed, empty for non-lot products
	Allocations []lots.Allocation

	// ValuationMissing is set when pricing was requested but no rate
	// existed; the movement is recorded unpriced.
	ValuationMissing bool

	// Replayed is set when MovementID matched an existing row.
	Replayed bool
}

// Service is the single entry point for recording movements. It owns the
// concurrency protocol: a per-key lock serializes each (product,
// warehouse) key, and all writes of one movement share a transaction.
type Service struct {
	movements  Repository
	stocks     *stock.Store
	lotEngine  *lots.Engine
	products   product.Reader
	warehouses WarehouseReader
	pricer     Pricer
	txm        tx.Manager

	locks       *keylock.KeyLock
	lockTimeout time.Duration
}

// NewService wires the ledger service.
func NewService(
	movements Repository,
	stocks *stock.Store,
	lotEngine *lots.Engine,
	products product.Reader,
	warehouses WarehouseReader,
	pricer Pricer,
	txm tx.Manager,
	lockTimeout time.Duration,
) *Service {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Service{
		movements:   movements,
		stocks:      stocks,
		lotEngine:   lotEngine,
		products:    products,
		warehouses:  warehouses,
		pricer:      pricer,
		txm:         txm,
		locks:       keylock.New(),
		lockTimeout: lockTimeout,
	}
}

// RecordMovement validates, locks, and atomically applies one movement:
// lot consumption or replenishment, the balance delta, the valuation
// snapshot and the journal row commit or roll back together.
func (s *Service) RecordMovement(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	// Idempotent replay before any locking.
	if !id.IsNil(req.MovementID) {
		existing, err := s.movements.GetByID(ctx, req.MovementID)
		if err == nil && existing != nil {
			return s.replay(ctx, existing)
		}
		if err != nil && !apperror.IsNotFound(err) {
			return nil, err
		}
	}

	prod, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if prod.Blocked {
		return nil, apperror.NewProductBlocked(prod.ID.String())
	}
	if req.AllowExpired && (!prod.AllowsSaleWhenExpired || req.Type != entity.MovementSaleOut) {
		return nil, apperror.NewBusinessRule(
			apperror.CodeBusinessRule,
			"expired lot exception is only available for sales of products that allow it",
		).WithDetail("product_id", prod.ID)
	}

	wh, err := s.warehouses.GetByID(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	if !wh.CanAcceptStock() {
		return nil, apperror.NewWarehouseInactive(wh.ID.String())
	}

	key := req.ProductID.String() + "|" + req.WarehouseID.String()
	release, err := s.locks.Acquire(ctx, key, s.lockTimeout)
	if err != nil {
		if errors.Is(err, keylock.ErrTimeout) {
			return nil, apperror.NewConcurrentModification("stock", key)
		}
		return nil, err
	}
	defer release()

	result := &Result{RequestedQuantity: req.Quantity}

	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		effective := req.Quantity

		if prod.ControlsLot {
			realized, err := s.applyLots(ctx, req, prod, result)
			if err != nil {
				return err
			}
			effective = realized
		}

		allowNegative := wh.AllowNegativeStock || !req.Type.ChecksNegativeStock()
		delta := req.Type.SignedQuantity(effective)

		before, after, err := s.stocks.ApplyDelta(ctx, req.ProductID, req.WarehouseID, delta, allowNegative)
		if err != nil {
			return err
		}

		actor := appctx.GetUserID(ctx)
		movement := entity.NewMovement(
			req.MovementID,
			req.ProductID, req.WarehouseID,
			req.Type,
			delta, before, after,
			req.Document,
			req.Reason,
			actor,
		)
		movement.SessionContext = req.Session
		movement.ValuationSnapshot = s.snapshot(ctx, req, result)

		if err := s.movements.Create(ctx, movement); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}

		result.Movement = movement
		result.RealizedQuantity = effective
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement recorded",
		"movement_id", result.Movement.ID,
		"product_id", req.ProductID,
		"warehouse_id", req.WarehouseID,
		"type", req.Type,
		"quantity", result.Movement.Quantity,
		"balance_after", result.Movement.BalanceAfter,
	)
	return result, nil
}

func (s *Service) validate(req Request) error {
	if !req.Type.IsValid() {
		return apperror.NewInvalidMovementType(string(req.Type))
	}
	if !req.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", req.Quantity)
	}
	if id.IsNil(req.ProductID) {
		return apperror.NewValidation("product is required").WithDetail("field", "productId")
	}
	if id.IsNil(req.WarehouseID) {
		return apperror.NewValidation("warehouse is required").WithDetail("field", "warehouseId")
	}
	if req.Document.IsZero() {
		return apperror.NewValidation("document reference is required").
			WithDetail("field", "document")
	}
	return nil
}

// applyLots runs the lot side of a movement and returns the realized
// quantity, which is less than requested only on an accepted partial.
func (s *Service) applyLots(ctx context.Context, req Request, prod *product.Product, result *Result) (types.Quantity, error) {
	actor := appctx.GetUserID(ctx)

	if req.Type.IsInbound() {
		lot, err := s.lotEngine.Replenish(ctx, lots.ReplenishRequest{
			ProductID:        req.ProductID,
			WarehouseID:      req.WarehouseID,
			LotNumber:        req.LotNumber,
			Quantity:         req.Quantity,
			UnitCost:         derefMoney(req.UnitCost),
			ExpirationDate:   req.ExpirationDate,
			ManufactureDate:  req.ManufactureDate,
			Type:             req.Type,
			Document:         req.Document,
			Reason:           req.Reason,
			Actor:            actor,
			IsInitialBalance: req.IsInitialBalance,
		})
		if err != nil {
			return 0, err
		}
		if prod.ControlsExpiration && lot.ExpirationDate == nil && !req.IsInitialBalance {
			return 0, apperror.NewValidation("expiration date is required for this product").
				WithDetail("field", "expirationDate")
		}
		return req.Quantity, nil
	}

	consumed, err := s.lotEngine.ConsumeFIFO(ctx, lots.ConsumeRequest{
		ProductID:     req.ProductID,
		WarehouseID:   req.WarehouseID,
		Quantity:      req.Quantity,
		Type:          req.Type,
		Document:      req.Document,
		Reason:        req.Reason,
		Actor:         actor,
		AllowExpired:  req.AllowExpired,
		AcceptPartial: req.AcceptPartial,
	})
	if err != nil && !(req.AcceptPartial && apperror.IsCode(err, apperror.CodeInsufficientLotStock)) {
		return 0, err
	}

	result.Allocations = consumed.Allocations
	result.Shortfall = consumed.Shortfall

	if consumed.Consumed.IsZero() {
		return 0, apperror.NewInsufficientLotStock(
			req.ProductID.String(),
			req.Quantity.Float64(),
			consumed.Shortfall.Float64(),
		)
	}

	return consumed.Consumed, nil
}

// snapshot prices the request's amounts. A missing rate is not fatal:
// the movement is recorded unpriced and flagged on the result.
func (s *Service) snapshot(ctx context.Context, req Request, result *Result) entity.ValuationSnapshot {
	var snap entity.ValuationSnapshot

	unitCost := req.UnitCost
	if unitCost == nil && len(result.Allocations) > 0 {
		cost := weightedAllocationCost(result.Allocations)
		unitCost = &cost
	}

	snap.UnitCost = unitCost
	snap.UnitPrice = req.UnitPrice
	snap.CurrencyID = req.CurrencyID

	if req.CurrencyID == nil {
		return snap
	}

	effectiveDate := time.Now().UTC()
	if req.Session.BusinessDay != nil {
		effectiveDate = *req.Session.BusinessDay
	}

	priceOne := func(amount *types.Money) *valuation.Snapshot {
		if amount == nil {
			return nil
		}
		priced, err := s.pricer.Price(ctx, *amount, *req.CurrencyID, effectiveDate)
		if err != nil {
			result.ValuationMissing = true
			logger.Warn(ctx, "movement recorded without valuation",
				"currency_id", req.CurrencyID,
				"effective_date", effectiveDate,
				"error", err,
			)
			return nil
		}
		return priced
	}

	if priced := priceOne(unitCost); priced != nil {
		snap.ExchangeRate = &priced.ExchangeRate
		snap.UnitCostBase = &priced.AmountBase
	}
	if priced := priceOne(req.UnitPrice); priced != nil {
		if snap.ExchangeRate == nil {
			snap.ExchangeRate = &priced.ExchangeRate
		}
		snap.UnitPriceBase = &priced.AmountBase
	}

	return snap
}

func (s *Service) replay(ctx context.Context, m *entity.Movement) (*Result, error) {
	logger.Info(ctx, "movement replayed", "movement_id", m.ID)
	return &Result{
		Movement:          m,
		RequestedQuantity: m.Quantity.Abs(),
		RealizedQuantity:  m.Quantity.Abs(),
		Replayed:          true,
	}, nil
}

// GetMovement returns one journal row.
func (s *Service) GetMovement(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	return s.movements.GetByID(ctx, movementID)
}

// History returns the movement journal for one key, newest first.
func (s *Service) History(ctx context.Context, productID, warehouseID id.ID, filter Filter) ([]*entity.Movement, error) {
	return s.movements.ListByKey(ctx, productID, warehouseID, filter)
}

// ByDocument returns all movements a document produced.
func (s *Service) ByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.Movement, error) {
	return s.movements.ListByDocument(ctx, ref)
}

// Turnover aggregates signed quantity per type over a period.
func (s *Service) Turnover(ctx context.Context, productID, warehouseID id.ID, from, to time.Time) (map[entity.MovementType]types.Quantity, error) {
	return s.movements.Turnover(ctx, productID, warehouseID, from, to)
}

func derefMoney(m *types.Money) types.Money {
	if m == nil {
		return types.ZeroMoney()
	}
	return *m
}

func weightedAllocationCost(allocs []lots.Allocation) types.Money {
	var total types.Quantity
	sum := types.ZeroMoney()
	for _, a := range allocs {
		total += a.Quantity
		sum = sum.Add(a.UnitCost.Mul(a.Quantity.Decimal()))
	}
	if !total.IsPositive() {
		return types.ZeroMoney()
	}
	return sum.Div(total.Decimal())
}
