package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// LotStatus is the lifecycle state of a physical batch.
type LotStatus string

const (
	// LotActive lots take part in FIFO/FEFO selection
	LotActive LotStatus = "active"
	// LotExhausted is set the instant remaining quantity reaches exactly zero
	LotExhausted LotStatus = "exhausted"
	// LotExpired is set by the periodic sweep once the expiration date passes
	LotExpired LotStatus = "expired"
	// LotBlocked is a manual override excluding the lot from selection
	LotBlocked LotStatus = "blocked"
)

// Lot is one physically distinct acquisition of a product in a warehouse.
// Quantity is mutated only through LotMovement creation.
type Lot struct {
	ID id.ID `db:"id" json:"id"`

	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// LotNumber is unique per (product, warehouse)
	LotNumber string `db:"lot_number" json:"lotNumber"`

	ExpirationDate  *time.Time `db:"expiration_date" json:"expirationDate,omitempty"`
	ManufactureDate *time.Time `db:"manufacture_date" json:"manufactureDate,omitempty"`

	QuantityRemaining types.Quantity `db:"quantity_remaining" json:"quantityRemaining"`
	InitialQuantity   types.Quantity `db:"initial_quantity" json:"initialQuantity"`

	// UnitCost is the acquisition cost per unit; replenishing an existing
	// lot re-weights it by quantity
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	// Document references the originating purchase document
	Document DocumentRef `db:"" json:"document"`

	// ReceivedAt is the ingestion timestamp (FIFO tie-break)
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`

	Status LotStatus `db:"status" json:"status"`

	// IsInitialBalance marks lots created while migrating legacy stock
	// with no known physical batch
	IsInitialBalance bool `db:"is_initial_balance" json:"isInitialBalance"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewLot creates an active lot.
func NewLot(productID, warehouseID id.ID, lotNumber string, quantity types.Quantity, unitCost types.Money, document DocumentRef) *Lot {
	now := time.Now().UTC()
	return &Lot{
		ID:                id.New(),
		ProductID:         productID,
		WarehouseID:       warehouseID,
		LotNumber:         lotNumber,
		QuantityRemaining: quantity,
		InitialQuantity:   quantity,
		UnitCost:          unitCost,
		Document:          document,
		ReceivedAt:        now,
		Status:            LotActive,
		UpdatedAt:         now,
	}
}

// IsExpiredAt reports whether the lot's expiration date has passed.
func (l *Lot) IsExpiredAt(at time.Time) bool {
	return l.ExpirationDate != nil && l.ExpirationDate.Before(at)
}

// Eligible reports whether the lot can be selected for consumption.
// Blocked and Expired lots are excluded unless includeExpired allows
// expired ones through (exception sale).
func (l *Lot) Eligible(includeExpired bool) bool {
	if !l.QuantityRemaining.IsPositive() {
		return false
	}
	switch l.Status {
	case LotActive:
		return true
	case LotExpired:
		return includeExpired
	default:
		return false
	}
}

// ApplyDelta mutates the remaining quantity and keeps status in step:
// Exhausted at exactly zero, back to Active when replenished.
func (l *Lot) ApplyDelta(delta types.Quantity) {
	l.QuantityRemaining += delta
	if l.QuantityRemaining.IsZero() {
		l.Status = LotExhausted
	} else if l.Status == LotExhausted && l.QuantityRemaining.IsPositive() {
		l.Status = LotActive
	}
	l.UpdatedAt = time.Now().UTC()
}

// LotMovement mirrors a Movement scoped to one lot, with its own
// before/after balances. Rows are write-once.
type LotMovement struct {
	ID    id.ID `db:"id" json:"id"`
	Seq   int64 `db:"seq" json:"seq"`
	LotID id.ID `db:"lot_id" json:"lotId"`

	Type MovementType `db:"movement_type" json:"type"`

	Quantity      types.Quantity `db:"quantity" json:"quantity"`
	BalanceBefore types.Quantity `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  types.Quantity `db:"balance_after" json:"balanceAfter"`

	Document DocumentRef `db:"" json:"document"`

	// DestinationLotID is set on the outbound side of lot-to-lot transfers
	DestinationLotID *id.ID `db:"destination_lot_id" json:"destinationLotId,omitempty"`

	Reason    string    `db:"reason" json:"reason,omitempty"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewLotMovement creates a lot movement row.
func NewLotMovement(
	lotID id.ID,
	movementType MovementType,
	quantity, before, after types.Quantity,
	document DocumentRef,
	reason, createdBy string,
) *LotMovement {
	return &LotMovement{
		ID:            id.New(),
		LotID:         lotID,
		Type:          movementType,
		Quantity:      quantity,
		BalanceBefore: before,
		BalanceAfter:  after,
		Document:      document,
		Reason:        reason,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
}
