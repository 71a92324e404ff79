// Package entity provides core domain entities for the inventory ledger.
package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType enumerates the stock-affecting event kinds.
// The sign of a movement's delta is derived from its type.
type MovementType string

const (
	MovementPurchaseIn    MovementType = "purchase_in"
	MovementSaleOut       MovementType = "sale_out"
	MovementAdjustmentIn  MovementType = "adjustment_in"
	MovementAdjustmentOut MovementType = "adjustment_out"
	MovementTransferIn    MovementType = "transfer_in"
	MovementTransferOut   MovementType = "transfer_out"
	MovementReturnIn      MovementType = "return_in"
	MovementReturnOut     MovementType = "return_out"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementPurchaseIn, MovementSaleOut,
		MovementAdjustmentIn, MovementAdjustmentOut,
		MovementTransferIn, MovementTransferOut,
		MovementReturnIn, MovementReturnOut:
		return true
	}
	return false
}

// IsInbound reports whether the type increases stock.
func (t MovementType) IsInbound() bool {
	switch t {
	case MovementPurchaseIn, MovementAdjustmentIn, MovementTransferIn, MovementReturnIn:
		return true
	}
	return false
}

// ChecksNegativeStock reports whether the type refuses to drive a balance
// below zero. Sales and outbound transfers check; adjustments and returns
// are unconstrained corrections.
func (t MovementType) ChecksNegativeStock() bool {
	return t == MovementSaleOut || t == MovementTransferOut
}

// SignedQuantity applies the type's direction to a positive request quantity.
func (t MovementType) SignedQuantity(q types.Quantity) types.Quantity {
	if t.IsInbound() {
		return q
	}
	return q.Neg()
}

// DocumentRef is the polymorphic reference to the document that
// originated a movement: a (type tag, id) pair, not a shared base type.
type DocumentRef struct {
	Type string `db:"document_type" json:"documentType"`
	ID   id.ID  `db:"document_id" json:"documentId"`
}

// IsZero reports an unset reference.
func (r DocumentRef) IsZero() bool {
	return r.Type == "" && id.IsNil(r.ID)
}

func (r DocumentRef) String() string {
	return r.Type + "/" + r.ID.String()
}

// SessionContext carries optional cash-register session fields on a movement.
type SessionContext struct {
	RegisterID  *id.ID     `db:"register_id" json:"registerId,omitempty"`
	ShiftNumber *int       `db:"shift_number" json:"shiftNumber,omitempty"`
	BusinessDay *time.Time `db:"business_day" json:"businessDay,omitempty"`
}

// ValuationSnapshot is the priced view of a movement, captured once at
// record time and immutable thereafter. All fields are optional: a
// movement may be recorded without valuation when no rate is available.
type ValuationSnapshot struct {
	UnitCost      *types.Money `db:"unit_cost" json:"unitCost,omitempty"`
	UnitPrice     *types.Money `db:"unit_price" json:"unitPrice,omitempty"`
	CurrencyID    *id.ID       `db:"currency_id" json:"currencyId,omitempty"`
	ExchangeRate  *types.Money `db:"exchange_rate" json:"exchangeRate,omitempty"`
	UnitCostBase  *types.Money `db:"unit_cost_base" json:"unitCostBase,omitempty"`
	UnitPriceBase *types.Money `db:"unit_price_base" json:"unitPriceBase,omitempty"`
}

// IsZero reports whether no valuation was captured.
func (v ValuationSnapshot) IsZero() bool {
	return v.UnitCost == nil && v.UnitPrice == nil && v.ExchangeRate == nil
}

// Movement is one immutable quantity change on a (product, warehouse) key.
// Rows are write-once: corrections are new offsetting movements.
type Movement struct {
	ID id.ID `db:"id" json:"id"`

	// Seq is a strictly increasing sequence assigned by storage.
	// For one key it totally orders movements; balance_before of
	// movement N equals balance_after of movement N-1.
	Seq int64 `db:"seq" json:"seq"`

	// Dimensions
	ProductID   id.ID `db:"product_id" json:"productId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	Type MovementType `db:"movement_type" json:"type"`

	// Quantity is the signed delta applied to the balance
	Quantity      types.Quantity `db:"quantity" json:"quantity"`
	BalanceBefore types.Quantity `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  types.Quantity `db:"balance_after" json:"balanceAfter"`

	Document DocumentRef `db:"" json:"document"`

	Reason    string `db:"reason" json:"reason,omitempty"`
	CreatedBy string `db:"created_by" json:"createdBy"`

	SessionContext    `db:"" json:"session,omitempty"`
	ValuationSnapshot `db:"" json:"valuation,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovement creates a movement row ready for persistence.
// Seq is assigned by storage on insert.
func NewMovement(
	movementID id.ID,
	productID, warehouseID id.ID,
	movementType MovementType,
	quantity, before, after types.Quantity,
	document DocumentRef,
	reason, createdBy string,
) *Movement {
	if id.IsNil(movementID) {
		movementID = id.New()
	}
	return &Movement{
		ID:            movementID,
		ProductID:     productID,
		WarehouseID:   warehouseID,
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
