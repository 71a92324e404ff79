// Package product exposes the read-only product catalog view the ledger
// depends on. The catalog itself is owned by an external system; the
// ledger only consumes the lot-control and expiration flags.
package product

import (
	"context"

	"stockledger/internal/core/id"
)

// Product is the ledger's read model of a catalog product.
type Product struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// ControlsLot: quantity changes must be attributed to physical lots
	ControlsLot bool `db:"controls_lot" json:"controlsLot"`

	// ControlsExpiration: lots of this product carry expiration dates
	ControlsExpiration bool `db:"controls_expiration" json:"controlsExpiration"`

	// AllowsSaleWhenExpired permits exception sales from expired lots
	AllowsSaleWhenExpired bool `db:"allows_sale_when_expired" json:"allowsSaleWhenExpired"`

	// ExpirationAlertDays drives the near-expiration report window
	ExpirationAlertDays int `db:"expiration_alert_days" json:"expirationAlertDays"`

	// Blocked products reject all new movements
	Blocked bool `db:"blocked" json:"blocked"`
}

// Reader is the read-only port to the product catalog.
type Reader interface {
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
}
