// Package ledger_repo provides PostgreSQL implementations for the
// movement journal and the stock balance table.
package ledger_repo

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
	"stockledger/internal/domain/ledger"
	"stockledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "ldg_movements"

var movementColumns = []string{
	"id", "seq", "product_id", "warehouse_id", "movement_type",
	"quantity", "balance_before", "balance_after",
	"document_type", "document_id",
	"reason", "created_by",
	"register_id", "shift_number", "business_day",
	"unit_cost", "unit_price", "currency_id", "exchange_rate",
	"unit_cost_base", "unit_price_base",
	"created_at",
}

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm postgres.QuerierProvider) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts the movement. Seq comes from the table's bigserial and
// is written back onto the entity.
func (r *MovementRepo) Create(ctx context.Context, m *entity.Movement) error {
	sql := `
		INSERT INTO ldg_movements (
			id, product_id, warehouse_id, movement_type,
			quantity, balance_before, balance_after,
			document_type, document_id,
			reason, created_by,
			register_id, shift_number, business_day,
			unit_cost, unit_price, currency_id, exchange_rate,
			unit_cost_base, unit_price_base,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		RETURNING seq
	`

	querier := r.txm.GetQuerier(ctx)
	err := querier.QueryRow(ctx, sql,
		m.ID, m.ProductID, m.WarehouseID, m.Type,
		m.Quantity, m.BalanceBefore, m.BalanceAfter,
		m.Document.Type, m.Document.ID,
		m.Reason, m.CreatedBy,
		m.RegisterID, m.ShiftNumber, m.BusinessDay,
		m.UnitCost, m.UnitPrice, m.CurrencyID, m.ExchangeRate,
		m.UnitCostBase, m.UnitPriceBase,
		m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

// GetByID retrieves one movement.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID)
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}

	return &m, nil
}

// ListByKey returns movements of one key, newest first.
func (r *MovementRepo) ListByKey(ctx context.Context, productID, warehouseID id.ID, filter ledger.Filter) ([]*entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"product_id":   productID,
			"warehouse_id": warehouseID,
		})

	if len(filter.Types) > 0 {
		q = q.Where(squirrel.Eq{"movement_type": filter.Types})
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.To})
	}

	q = q.OrderBy("seq DESC")

	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*entity.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	return movements, nil
}

// ListByDocument returns all movements traced to a document.
func (r *MovementRepo) ListByDocument(ctx context.Context, ref entity.DocumentRef) ([]*entity.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"document_type": ref.Type,
			"document_id":   ref.ID,
		}).
		OrderBy("seq")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []*entity.Movement
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}

	return movements, nil
}

// Turnover aggregates signed quantity per movement type over a period.
func (r *MovementRepo) Turnover(ctx context.Context, productID, warehouseID id.ID, from, to time.Time) (map[entity.MovementType]types.Quantity, error) {
	sql := `
		SELECT movement_type, COALESCE(SUM(quantity), 0)
		FROM ldg_movements
		WHERE product_id = $1
		  AND warehouse_id = $2
		  AND created_at >= $3
		  AND created_at < $4
		GROUP BY movement_type
	`

	querier := r.txm.GetQuerier(ctx)
	rows, err := querier.Query(ctx, sql, productID, warehouseID, from, to)
	if err != nil {
		if err == pgx.ErrNoRows {
			return map[entity.MovementType]types.Quantity{}, nil
		}
		return nil, fmt.Errorf("calculate turnover: %w", err)
	}
	defer rows.Close()

	result := make(map[entity.MovementType]types.Quantity)
	for rows.Next() {
		var mt entity.MovementType
		var scaled int64
		if err := rows.Scan(&mt, &scaled); err != nil {
			return nil, fmt.Errorf("scan turnover row: %w", err)
		}
		result[mt] = types.NewQuantityFromInt64Scaled(scaled)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turnover rows: %w", err)
	}

	return result, nil
}

// Ensure interface compliance.
var _ ledger.Repository = (*MovementRepo)(nil)
