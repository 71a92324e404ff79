// Package catalog_repo provides PostgreSQL implementations for catalog
// repositories.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/warehouse"
	"stockledger/internal/infrastructure/storage/postgres"
)

const warehouseTable = "cat_warehouses"

var warehouseColumns = []string{
	"id", "code", "name", "branch_id",
	"is_active", "allow_negative_stock", "address",
	"created_at", "updated_at",
}

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewWarehouseRepo creates a new warehouse repository.
func NewWarehouseRepo(txm postgres.QuerierProvider) *WarehouseRepo {
	return &WarehouseRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new warehouse.
func (r *WarehouseRepo) Create(ctx context.Context, wh *warehouse.Warehouse) error {
	q := r.builder.Insert(warehouseTable).
		Columns(warehouseColumns...).
		Values(
			wh.ID, wh.Code, wh.Name, wh.BranchID,
			wh.IsActive, wh.AllowNegativeStock, wh.Address,
			wh.CreatedAt, wh.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert warehouse: %w", err)
	}

	return nil
}

// Update writes warehouse changes.
func (r *WarehouseRepo) Update(ctx context.Context, wh *warehouse.Warehouse) error {
	q := r.builder.Update(warehouseTable).
		Set("code", wh.Code).
		Set("name", wh.Name).
		Set("branch_id", wh.BranchID).
		Set("is_active", wh.IsActive).
		Set("allow_negative_stock", wh.AllowNegativeStock).
		Set("address", wh.Address).
		Set("updated_at", wh.UpdatedAt).
		Where(squirrel.Eq{"id": wh.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update warehouse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("warehouse", wh.ID)
	}

	return nil
}

// GetByID retrieves one warehouse.
func (r *WarehouseRepo) GetByID(ctx context.Context, whID id.ID) (*warehouse.Warehouse, error) {
	q := r.builder.Select(warehouseColumns...).
		From(warehouseTable).
		Where(squirrel.Eq{"id": whID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var wh warehouse.Warehouse
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &wh, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("warehouse", whID)
		}
		return nil, fmt.Errorf("get warehouse: %w", err)
	}

	return &wh, nil
}

// GetByCode retrieves one warehouse by its code.
func (r *WarehouseRepo) GetByCode(ctx context.Context, code string) (*warehouse.Warehouse, error) {
	q := r.builder.Select(warehouseColumns...).
		From(warehouseTable).
		Where(squirrel.Eq{"code": code}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var wh warehouse.Warehouse
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &wh, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("warehouse", code)
		}
		return nil, fmt.Errorf("get warehouse by code: %w", err)
	}

	return &wh, nil
}

// List returns warehouses, optionally including deactivated ones.
func (r *WarehouseRepo) List(ctx context.Context, includeInactive bool) ([]*warehouse.Warehouse, error) {
	q := r.builder.Select(warehouseColumns...).
		From(warehouseTable)

	if !includeInactive {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	q = q.OrderBy("code")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*warehouse.Warehouse
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select warehouses: %w", err)
	}

	return result, nil
}

// Ensure interface compliance.
var _ warehouse.Repository = (*WarehouseRepo)(nil)
