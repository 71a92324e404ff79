package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const stockTable = "ldg_stock"

var stockColumns = []string{
	"product_id", "warehouse_id",
	"quantity", "min_quantity", "last_movement_at", "updated_at",
}

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewStockRepo creates a new stock balance repository.
func NewStockRepo(txm postgres.QuerierProvider) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get returns the current record, or a zero-balance one when absent.
func (r *StockRepo) Get(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error) {
	q := r.builder.Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec entity.StockRecord
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.NewStockRecord(productID, warehouseID), nil
		}
		return nil, fmt.Errorf("get stock record: %w", err)
	}

	return &rec, nil
}

// GetForUpdate returns the record with a row lock, creating the row
// first when the key has never moved. Must run inside a transaction.
func (r *StockRepo) GetForUpdate(ctx context.Context, productID, warehouseID id.ID) (*entity.StockRecord, error) {
	querier := r.txm.GetQuerier(ctx)

	// Ensure the row exists so FOR UPDATE has something to lock.
	insertSQL := `
		INSERT INTO ldg_stock (product_id, warehouse_id, quantity, min_quantity, last_movement_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, $3)
		ON CONFLICT (product_id, warehouse_id) DO NOTHING
	`
	if _, err := querier.Exec(ctx, insertSQL, productID, warehouseID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("ensure stock row: %w", err)
	}

	selectSQL := `
		SELECT product_id, warehouse_id, quantity, min_quantity, last_movement_at, updated_at
		FROM ldg_stock
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE
	`
	var rec entity.StockRecord
	if err := pgxscan.Get(ctx, querier, &rec, selectSQL, productID, warehouseID); err != nil {
		return nil, fmt.Errorf("get stock record for update: %w", err)
	}

	return &rec, nil
}

// Save writes the mutated record.
func (r *StockRepo) Save(ctx context.Context, rec *entity.StockRecord) error {
	q := r.builder.Update(stockTable).
		Set("quantity", rec.Quantity).
		Set("last_movement_at", rec.LastMovementAt).
		Set("updated_at", rec.UpdatedAt).
		Where(squirrel.Eq{
			"product_id":   rec.ProductID,
			"warehouse_id": rec.WarehouseID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update stock record: %w", err)
	}

	return nil
}

// SetMinimum updates the reorder threshold, creating the row when absent.
func (r *StockRepo) SetMinimum(ctx context.Context, productID, warehouseID id.ID, min types.Quantity) error {
	sql := `
		INSERT INTO ldg_stock (product_id, warehouse_id, quantity, min_quantity, last_movement_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $4)
		ON CONFLICT (product_id, warehouse_id)
		DO UPDATE SET min_quantity = EXCLUDED.min_quantity, updated_at = EXCLUDED.updated_at
	`

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, productID, warehouseID, min, time.Now().UTC()); err != nil {
		return fmt.Errorf("set minimum: %w", err)
	}

	return nil
}

// ListByWarehouse returns records for a warehouse.
func (r *StockRepo) ListByWarehouse(ctx context.Context, warehouseID id.ID, filter stock.Filter) ([]*entity.StockRecord, error) {
	q := r.builder.Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Eq{"warehouse_id": warehouseID})

	if filter.ExcludeZero {
		q = q.Where(squirrel.NotEq{"quantity": int64(0)})
	}
	if len(filter.ProductIDs) > 0 {
		q = q.Where(squirrel.Eq{"product_id": filter.ProductIDs})
	}

	q = q.OrderBy("product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []*entity.StockRecord
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock records: %w", err)
	}

	return records, nil
}

// ListBelowMinimum returns records under their reorder threshold.
func (r *StockRepo) ListBelowMinimum(ctx context.Context, warehouseID *id.ID) ([]*entity.StockRecord, error) {
	q := r.builder.Select(stockColumns...).
		From(stockTable).
		Where(squirrel.Gt{"min_quantity": int64(0)}).
		Where("quantity < min_quantity")

	if warehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *warehouseID})
	}

	q = q.OrderBy("warehouse_id", "product_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var records []*entity.StockRecord
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &records, sql, args...); err != nil {
		return nil, fmt.Errorf("select below-minimum records: %w", err)
	}

	return records, nil
}

// Ensure interface compliance.
var _ stock.Repository = (*StockRepo)(nil)
