// Package lot_repo provides PostgreSQL implementations for lots and
// lot movements.
package lot_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/lots"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	lotsTable         = "ldg_lots"
	lotMovementsTable = "ldg_lot_movements"
)

var lotColumns = []string{
	"id", "product_id", "warehouse_id", "lot_number",
	"expiration_date", "manufacture_date",
	"quantity_remaining", "initial_quantity", "unit_cost",
	"document_type", "document_id",
	"received_at", "status", "is_initial_balance", "updated_at",
}

var lotMovementColumns = []string{
	"id", "seq", "lot_id", "movement_type",
	"quantity", "balance_before", "balance_after",
	"document_type", "document_id",
	"destination_lot_id", "reason", "created_by", "created_at",
}

// LotRepo implements lots.Repository.
type LotRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewLotRepo creates a new lot repository.
func NewLotRepo(txm postgres.QuerierProvider) *LotRepo {
	return &LotRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CreateLot inserts a new lot.
func (r *LotRepo) CreateLot(ctx context.Context, lot *entity.Lot) error {
	q := r.builder.Insert(lotsTable).
		Columns(lotColumns...).
		Values(
			lot.ID, lot.ProductID, lot.WarehouseID, lot.LotNumber,
			lot.ExpirationDate, lot.ManufactureDate,
			lot.QuantityRemaining, lot.InitialQuantity, lot.UnitCost,
			lot.Document.Type, lot.Document.ID,
			lot.ReceivedAt, lot.Status, lot.IsInitialBalance, lot.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}

	return nil
}

// SaveLot writes a mutated lot.
func (r *LotRepo) SaveLot(ctx context.Context, lot *entity.Lot) error {
	q := r.builder.Update(lotsTable).
		Set("quantity_remaining", lot.QuantityRemaining).
		Set("initial_quantity", lot.InitialQuantity).
		Set("unit_cost", lot.UnitCost).
		Set("expiration_date", lot.ExpirationDate).
		Set("manufacture_date", lot.ManufactureDate).
		Set("status", lot.Status).
		Set("updated_at", lot.UpdatedAt).
		Where(squirrel.Eq{"id": lot.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update lot: %w", err)
	}

	return nil
}

// GetLot retrieves one lot.
func (r *LotRepo) GetLot(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.getLot(ctx, lotID, false)
}

// GetLotForUpdate retrieves one lot with a row lock.
func (r *LotRepo) GetLotForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.getLot(ctx, lotID, true)
}

func (r *LotRepo) getLot(ctx context.Context, lotID id.ID, forUpdate bool) (*entity.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"id": lotID}).
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lot entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotID)
		}
		return nil, fmt.Errorf("get lot: %w", err)
	}

	return &lot, nil
}

// FindByNumberForUpdate locates a lot by number within a key, row-locked.
func (r *LotRepo) FindByNumberForUpdate(ctx context.Context, productID, warehouseID id.ID, lotNumber string) (*entity.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"lot_number":   lotNumber,
		}).
		Limit(1).
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lot entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &lot, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("lot", lotNumber)
		}
		return nil, fmt.Errorf("find lot by number: %w", err)
	}

	return &lot, nil
}

// ListConsumableForUpdate returns candidate lots for consumption in
// FEFO-within-FIFO order, row-locked. NULLS LAST keeps undated lots at
// the back of the queue.
func (r *LotRepo) ListConsumableForUpdate(ctx context.Context, productID, warehouseID id.ID, includeExpired bool) ([]*entity.Lot, error) {
	statuses := []string{string(entity.LotActive)}
	if includeExpired {
		statuses = append(statuses, string(entity.LotExpired))
	}

	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
			"status":       statuses,
		}).
		Where(squirrel.Gt{"quantity_remaining": int64(0)}).
		OrderBy("expiration_date ASC NULLS LAST", "received_at ASC", "id ASC").
		Suffix("FOR UPDATE")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select consumable lots: %w", err)
	}

	return result, nil
}

// ListByKey returns all lots for a (product, warehouse) pair.
func (r *LotRepo) ListByKey(ctx context.Context, productID, warehouseID id.ID) ([]*entity.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		}).
		OrderBy("received_at", "lot_number")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}

	return result, nil
}

// ListExpiring returns active lots expiring on or before the horizon.
func (r *LotRepo) ListExpiring(ctx context.Context, warehouseID *id.ID, horizon time.Time) ([]*entity.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"status": entity.LotActive}).
		Where(squirrel.Gt{"quantity_remaining": int64(0)}).
		Where(squirrel.NotEq{"expiration_date": nil}).
		Where(squirrel.LtOrEq{"expiration_date": horizon})

	if warehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *warehouseID})
	}

	q = q.OrderBy("expiration_date", "warehouse_id", "lot_number")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select expiring lots: %w", err)
	}

	return result, nil
}

// ListExpiredActive returns active lots whose expiration has passed.
func (r *LotRepo) ListExpiredActive(ctx context.Context, asOf time.Time, limit int) ([]*entity.Lot, error) {
	q := r.builder.Select(lotColumns...).
		From(lotsTable).
		Where(squirrel.Eq{"status": entity.LotActive}).
		Where(squirrel.NotEq{"expiration_date": nil}).
		Where(squirrel.Lt{"expiration_date": asOf}).
		OrderBy("expiration_date")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.Lot
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select expired lots: %w", err)
	}

	return result, nil
}

// SumRemaining totals remaining quantity across a key's lots.
func (r *LotRepo) SumRemaining(ctx context.Context, productID, warehouseID id.ID) (types.Quantity, error) {
	sql := `
		SELECT COALESCE(SUM(quantity_remaining), 0)
		FROM ldg_lots
		WHERE product_id = $1 AND warehouse_id = $2
	`

	var scaled int64
	querier := r.txm.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql, productID, warehouseID).Scan(&scaled)
	if err != nil && err != pgx.ErrNoRows {
		return 0, fmt.Errorf("sum remaining: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(scaled), nil
}

// CreateLotMovements batch inserts mirror rows.
func (r *LotRepo) CreateLotMovements(ctx context.Context, movements []*entity.LotMovement) error {
	if len(movements) == 0 {
		return nil
	}

	q := r.builder.Insert(lotMovementsTable).Columns(
		"id", "lot_id", "movement_type",
		"quantity", "balance_before", "balance_after",
		"document_type", "document_id",
		"destination_lot_id", "reason", "created_by", "created_at",
	)

	for _, m := range movements {
		q = q.Values(
			m.ID, m.LotID, m.Type,
			m.Quantity, m.BalanceBefore, m.BalanceAfter,
			m.Document.Type, m.Document.ID,
			m.DestinationLotID, m.Reason, m.CreatedBy, m.CreatedAt,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lot movements: %w", err)
	}

	return nil
}

// ListMovementsByLot returns the movement history of one lot.
func (r *LotRepo) ListMovementsByLot(ctx context.Context, lotID id.ID) ([]*entity.LotMovement, error) {
	q := r.builder.Select(lotMovementColumns...).
		From(lotMovementsTable).
		Where(squirrel.Eq{"lot_id": lotID}).
		OrderBy("seq")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.LotMovement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select lot movements: %w", err)
	}

	return result, nil
}

// ListMovementsByDocument returns lot movements traced to a document.
func (r *LotRepo) ListMovementsByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.LotMovement, error) {
	q := r.builder.Select(lotMovementColumns...).
		From(lotMovementsTable).
		Where(squirrel.Eq{
			"document_type": ref.Type,
			"document_id":   ref.ID,
		}).
		OrderBy("seq")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var result []*entity.LotMovement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select lot movements: %w", err)
	}

	return result, nil
}

// Ensure interface compliance.
var _ lots.Repository = (*LotRepo)(nil)
