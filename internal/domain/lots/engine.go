package lots

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// ExpiredSaleReason is appended to lot movements produced by an
// exception sale from an expired lot.
const ExpiredSaleReason = "expired lot exception sale"

// Engine implements lot selection and mutation. All methods expect to run
// inside the caller's transaction and per-key lock; the engine itself
// takes row locks through the repository.
type Engine struct {
	repo Repository
}

// NewEngine creates a lot engine.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// Allocation is one lot's contribution to a consumption call.
type Allocation struct {
	LotID     id.ID          `json:"lotId"`
	LotNumber string         `json:"lotNumber"`
	Quantity  types.Quantity `json:"quantity"`
	UnitCost  types.Money    `json:"unitCost"`
	Expired   bool           `json:"expired,omitempty"`
}

// ConsumeRequest asks the engine to take quantity out of a key's lots.
type ConsumeRequest struct {
	ProductID   id.ID
	WarehouseID id.ID
	Quantity    types.Quantity
	Type        entity.MovementType
	Document    entity.DocumentRef
	Reason      string
	Actor       string

	// AllowExpired lets expired lots participate (exception sale).
	// The ledger only sets this for sale movements on products flagged
	// AllowsSaleWhenExpired.
	AllowExpired bool

	// AcceptPartial applies the partial allocation when lots cannot
	// cover the full quantity; otherwise nothing is mutated.
	AcceptPartial bool
}

// ConsumeResult reports what was (or would be) taken.
type ConsumeResult struct {
	Allocations []Allocation
	Consumed    types.Quantity
	Shortfall   types.Quantity
	// WeightedUnitCost is the quantity-weighted average acquisition cost
	// across the lots touched, for the movement's valuation snapshot.
	WeightedUnitCost types.Money
}

// ConsumeFIFO takes quantity out of eligible lots in FEFO-within-FIFO
// order, one LotMovement per lot touched. When eligible lots cannot cover
// the request, the shortfall is reported via InsufficientLotStock; the
// partial allocation is only applied when the request accepts it.
func (e *Engine) ConsumeFIFO(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if req.Type.IsInbound() {
		return nil, apperror.NewInvalidMovementType(string(req.Type)).
			WithDetail("reason", "consumption requires an outbound type")
	}

	candidates, err := e.repo.ListConsumableForUpdate(ctx, req.ProductID, req.WarehouseID, req.AllowExpired)
	if err != nil {
		return nil, fmt.Errorf("list consumable lots: %w", err)
	}

	result := &ConsumeResult{}
	stillNeeded := req.Quantity
	var touched []*entity.Lot

	for _, lot := range candidates {
		if stillNeeded.IsZero() {
			break
		}
		if !lot.Eligible(req.AllowExpired) {
			continue
		}

		take := lot.QuantityRemaining.Min(stillNeeded)
		result.Allocations = append(result.Allocations, Allocation{
			LotID:     lot.ID,
			LotNumber: lot.LotNumber,
			Quantity:  take,
			UnitCost:  lot.UnitCost,
			Expired:   lot.Status == entity.LotExpired,
		})
		touched = append(touched, lot)
		stillNeeded -= take
	}

	result.Consumed = req.Quantity - stillNeeded
	result.Shortfall = stillNeeded

	if result.Shortfall.IsPositive() && !req.AcceptPartial {
		// Nothing mutated: the caller decides whether to retry with
		// AcceptPartial or abort the whole movement.
		return result, apperror.NewInsufficientLotStock(
			req.ProductID.String(),
			req.Quantity.Float64(),
			result.Shortfall.Float64(),
		)
	}

	if result.Consumed.IsZero() {
		result.WeightedUnitCost = decimal.Zero
		if result.Shortfall.IsPositive() {
			return result, apperror.NewInsufficientLotStock(
				req.ProductID.String(),
				req.Quantity.Float64(),
				result.Shortfall.Float64(),
			)
		}
		return result, nil
	}

	// Apply the plan: mutate lots and emit one mirror row per lot.
	mirrors := make([]*entity.LotMovement, 0, len(result.Allocations))
	for i, alloc := range result.Allocations {
		lot := touched[i]
		before := lot.QuantityRemaining
		lot.ApplyDelta(alloc.Quantity.Neg())

		if err := e.repo.SaveLot(ctx, lot); err != nil {
			return nil, fmt.Errorf("save lot %s: %w", lot.ID, err)
		}

		reason := req.Reason
		if alloc.Expired {
			reason = joinReason(reason, ExpiredSaleReason)
		}

		mirrors = append(mirrors, entity.NewLotMovement(
			lot.ID,
			req.Type,
			alloc.Quantity.Neg(),
			before,
			lot.QuantityRemaining,
			req.Document,
			reason,
			req.Actor,
		))
	}

	if err := e.repo.CreateLotMovements(ctx, mirrors); err != nil {
		return nil, fmt.Errorf("create lot movements: %w", err)
	}

	result.WeightedUnitCost = weightedCost(result.Allocations)

	logger.Debug(ctx, "lots consumed",
		"product_id", req.ProductID,
		"warehouse_id", req.WarehouseID,
		"lots", len(result.Allocations),
		"consumed", result.Consumed,
		"shortfall", result.Shortfall,
	)

	if result.Shortfall.IsPositive() {
		return result, apperror.NewInsufficientLotStock(
			req.ProductID.String(),
			req.Quantity.Float64(),
			result.Shortfall.Float64(),
		)
	}
	return result, nil
}

// ReplenishRequest adds quantity to a lot, creating it when needed.
type ReplenishRequest struct {
	ProductID       id.ID
	WarehouseID     id.ID
	LotNumber       string
	Quantity        types.Quantity
	UnitCost        types.Money
	ExpirationDate  *time.Time
	ManufactureDate *time.Time
	Type            entity.MovementType
	Document        entity.DocumentRef
	Reason          string
	Actor           string

	// IsInitialBalance marks a legacy-stock migration lot
	IsInitialBalance bool
}

// Replenish adds quantity to the named lot. An existing lot's unit cost
// becomes the quantity-weighted average of old and new stock; a missing
// lot is created. Blocked lots reject replenishment.
func (e *Engine) Replenish(ctx context.Context, req ReplenishRequest) (*entity.Lot, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if req.LotNumber == "" {
		return nil, apperror.NewValidation("lot number is required").
			WithDetail("field", "lotNumber")
	}
	if !req.Type.IsInbound() {
		return nil, apperror.NewInvalidMovementType(string(req.Type)).
			WithDetail("reason", "replenishment requires an inbound type")
	}

	lot, err := e.repo.FindByNumberForUpdate(ctx, req.ProductID, req.WarehouseID, req.LotNumber)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("find lot: %w", err)
	}

	if lot == nil || apperror.IsNotFound(err) {
		lot = entity.NewLot(req.ProductID, req.WarehouseID, req.LotNumber, req.Quantity, req.UnitCost, req.Document)
		lot.ExpirationDate = req.ExpirationDate
		lot.ManufactureDate = req.ManufactureDate
		lot.IsInitialBalance = req.IsInitialBalance

		if err := e.repo.CreateLot(ctx, lot); err != nil {
			return nil, fmt.Errorf("create lot: %w", err)
		}

		mirror := entity.NewLotMovement(
			lot.ID, req.Type, req.Quantity, 0, req.Quantity,
			req.Document, req.Reason, req.Actor,
		)
		if err := e.repo.CreateLotMovements(ctx, []*entity.LotMovement{mirror}); err != nil {
			return nil, fmt.Errorf("create lot movement: %w", err)
		}

		logger.Info(ctx, "lot created",
			"lot_id", lot.ID,
			"lot_number", lot.LotNumber,
			"product_id", req.ProductID,
			"quantity", req.Quantity,
		)
		return lot, nil
	}

	if lot.Status == entity.LotBlocked {
		return nil, apperror.NewLotBlocked(lot.ID.String())
	}

	before := lot.QuantityRemaining
	lot.UnitCost = weightedAverage(before, lot.UnitCost, req.Quantity, req.UnitCost)
	lot.ApplyDelta(req.Quantity)
	lot.InitialQuantity += req.Quantity

	if err := e.repo.SaveLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("save lot: %w", err)
	}

	mirror := entity.NewLotMovement(
		lot.ID, req.Type, req.Quantity, before, lot.QuantityRemaining,
		req.Document, req.Reason, req.Actor,
	)
	if err := e.repo.CreateLotMovements(ctx, []*entity.LotMovement{mirror}); err != nil {
		return nil, fmt.Errorf("create lot movement: %w", err)
	}

	return lot, nil
}

// TransferBetweenLots moves quantity from one lot to another within the
// same (product, warehouse) key. The net stock balance is unchanged, so
// no ledger movement is produced; both sides get mirror rows, the
// outbound one carrying the destination lot reference.
func (e *Engine) TransferBetweenLots(ctx context.Context, sourceLotID, destLotID id.ID, quantity types.Quantity, reason, actor string) error {
	if !quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive")
	}
	if sourceLotID == destLotID {
		return apperror.NewValidation("source and destination lots must differ")
	}

	// Deterministic lock order avoids deadlock with a concurrent
	// transfer in the opposite direction.
	first, second := sourceLotID, destLotID
	if bytes.Compare(second[:], first[:]) < 0 {
		first, second = second, first
	}
	lockA, err := e.repo.GetLotForUpdate(ctx, first)
	if err != nil {
		return err
	}
	lockB, err := e.repo.GetLotForUpdate(ctx, second)
	if err != nil {
		return err
	}
	source, dest := lockA, lockB
	if source.ID != sourceLotID {
		source, dest = lockB, lockA
	}

	if source.ProductID != dest.ProductID || source.WarehouseID != dest.WarehouseID {
		return apperror.NewValidation("lots must share product and warehouse").
			WithDetail("source_lot", sourceLotID).
			WithDetail("destination_lot", destLotID)
	}
	if source.Status == entity.LotBlocked {
		return apperror.NewLotBlocked(source.ID.String())
	}
	if dest.Status == entity.LotBlocked {
		return apperror.NewLotBlocked(dest.ID.String())
	}
	if source.QuantityRemaining < quantity {
		return apperror.NewInsufficientLotStock(
			source.ProductID.String(),
			quantity.Float64(),
			(quantity - source.QuantityRemaining).Float64(),
		)
	}

	srcBefore := source.QuantityRemaining
	destBefore := dest.QuantityRemaining

	source.ApplyDelta(quantity.Neg())
	dest.UnitCost = weightedAverage(destBefore, dest.UnitCost, quantity, source.UnitCost)
	dest.ApplyDelta(quantity)

	if err := e.repo.SaveLot(ctx, source); err != nil {
		return fmt.Errorf("save source lot: %w", err)
	}
	if err := e.repo.SaveLot(ctx, dest); err != nil {
		return fmt.Errorf("save destination lot: %w", err)
	}

	doc := entity.DocumentRef{Type: "LotTransfer", ID: id.New()}
	out := entity.NewLotMovement(
		source.ID, entity.MovementTransferOut, quantity.Neg(), srcBefore, source.QuantityRemaining,
		doc, reason, actor,
	)
	out.DestinationLotID = &dest.ID
	in := entity.NewLotMovement(
		dest.ID, entity.MovementTransferIn, quantity, destBefore, dest.QuantityRemaining,
		doc, reason, actor,
	)

	if err := e.repo.CreateLotMovements(ctx, []*entity.LotMovement{out, in}); err != nil {
		return fmt.Errorf("create lot movements: %w", err)
	}

	logger.Info(ctx, "lot-to-lot transfer",
		"source_lot", source.ID,
		"destination_lot", dest.ID,
		"quantity", quantity,
	)
	return nil
}

// SetBlocked toggles the manual block override on a lot.
func (e *Engine) SetBlocked(ctx context.Context, lotID id.ID, blocked bool) (*entity.Lot, error) {
	lot, err := e.repo.GetLotForUpdate(ctx, lotID)
	if err != nil {
		return nil, err
	}

	if blocked {
		lot.Status = entity.LotBlocked
	} else {
		// Unblocking re-evaluates the natural state.
		switch {
		case lot.QuantityRemaining.IsZero():
			lot.Status = entity.LotExhausted
		case lot.IsExpiredAt(time.Now().UTC()):
			lot.Status = entity.LotExpired
		default:
			lot.Status = entity.LotActive
		}
	}
	lot.UpdatedAt = time.Now().UTC()

	if err := e.repo.SaveLot(ctx, lot); err != nil {
		return nil, fmt.Errorf("save lot: %w", err)
	}
	return lot, nil
}

// KeyBalance totals remaining quantity across a key's lots. For
// lot-controlled products this must equal the StockRecord balance.
func (e *Engine) KeyBalance(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	return e.repo.SumRemaining(ctx, productID, warehouseID)
}

// ListByKey returns all lots of a key.
func (e *Engine) ListByKey(ctx context.Context, productID, warehouseID id.ID) ([]*entity.Lot, error) {
	return e.repo.ListByKey(ctx, productID, warehouseID)
}

// ListExpiring returns active lots expiring within the horizon.
func (e *Engine) ListExpiring(ctx context.Context, warehouseID *id.ID, horizon time.Time) ([]*entity.Lot, error) {
	return e.repo.ListExpiring(ctx, warehouseID, horizon)
}

// weightedAverage computes the quantity-weighted unit cost after merging
// newQty at newCost into oldQty at oldCost.
func weightedAverage(oldQty types.Quantity, oldCost types.Money, newQty types.Quantity, newCost types.Money) types.Money {
	total := oldQty + newQty
	if !total.IsPositive() {
		return newCost
	}
	oldPart := oldCost.Mul(oldQty.Decimal())
	newPart := newCost.Mul(newQty.Decimal())
	return oldPart.Add(newPart).Div(total.Decimal())
}

// weightedCost averages allocation costs by quantity.
func weightedCost(allocs []Allocation) types.Money {
	var total types.Quantity
	sum := decimal.Zero
	for _, a := range allocs {
		total += a.Quantity
		sum = sum.Add(a.UnitCost.Mul(a.Quantity.Decimal()))
	}
	if !total.IsPositive() {
		return decimal.Zero
	}
	return sum.Div(total.Decimal())
}

func joinReason(base, extra string) string {
	if base == "" {
		return extra
	}
	return base + "; " + extra
}
