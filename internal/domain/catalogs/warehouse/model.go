// Package warehouse provides the Warehouse catalog.
// Warehouses are physical storage locations; movements reference them
// permanently, so they are deactivated rather than deleted.
package warehouse

import (
	"context"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Warehouse represents a storage location for goods.
type Warehouse struct {
	ID   id.ID  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// BranchID is the owning branch/site
	BranchID *id.ID `db:"branch_id" json:"branchId,omitempty"`

	// IsActive indicates if warehouse is operational.
	// Inactive warehouses reject new movements but keep their history.
	IsActive bool `db:"is_active" json:"isActive"`

	// AllowNegativeStock lets outbound movements drive the balance below
	// zero on this warehouse (explicit override, off by default)
	AllowNegativeStock bool `db:"allow_negative_stock" json:"allowNegativeStock"`

	Address *string `db:"address" json:"address,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewWarehouse creates a new active Warehouse.
func NewWarehouse(code, name string) *Warehouse {
	now := time.Now().UTC()
	return &Warehouse{
		ID:        id.New(),
		Code:      code,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks catalog invariants.
func (w *Warehouse) Validate(ctx context.Context) error {
	if w.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	if w.Code == "" {
		return apperror.NewValidation("code is required").
			WithDetail("field", "code")
	}
	return nil
}

// CanAcceptStock returns true if warehouse can take part in movements.
func (w *Warehouse) CanAcceptStock() bool {
	return w.IsActive
}

// Deactivate marks the warehouse out of service. History stays intact.
func (w *Warehouse) Deactivate() {
	w.IsActive = false
	w.UpdatedAt = time.Now().UTC()
}
