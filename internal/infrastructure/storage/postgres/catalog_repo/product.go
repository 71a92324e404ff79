package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/catalogs/product"
	"stockledger/internal/infrastructure/storage/postgres"
)

const productTable = "cat_products"

var productColumns = []string{
	"id", "code", "name",
	"controls_lot", "controls_expiration", "allows_sale_when_expired",
	"expiration_alert_days", "blocked",
}

// ProductRepo implements product.Reader against the replicated product
// view. The catalog is owned externally; the ledger only reads it.
type ProductRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewProductRepo creates a new product read repository.
func NewProductRepo(txm postgres.QuerierProvider) *ProductRepo {
	return &ProductRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID retrieves one product.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := r.builder.Select(productColumns...).
		From(productTable).
		Where(squirrel.Eq{"id": productID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &p, nil
}

// Ensure interface compliance.
var _ product.Reader = (*ProductRepo)(nil)
