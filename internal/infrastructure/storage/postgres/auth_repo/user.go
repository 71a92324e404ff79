// Package auth_repo provides the PostgreSQL user repository.
package auth_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/auth"
	"stockledger/internal/infrastructure/storage/postgres"
)

const usersTable = "sys_users"

var userColumns = []string{
	"id", "email", "password_hash", "full_name",
	"roles", "is_admin", "branch_id", "is_active", "created_at",
}

// UserRepo implements auth.Repository.
type UserRepo struct {
	txm     postgres.QuerierProvider
	builder squirrel.StatementBuilderType
}

// NewUserRepo creates a new user repository.
func NewUserRepo(txm postgres.QuerierProvider) *UserRepo {
	return &UserRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	q := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			user.ID, user.Email, user.PasswordHash, user.FullName,
			user.Roles, user.IsAdmin, user.BranchID, user.IsActive, user.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByEmail retrieves one user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	q := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"email": email}).
		Limit(1)

	return r.getOne(ctx, q, email)
}

// GetByID retrieves one user.
func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	q := r.builder.Select(userColumns...).
		From(usersTable).
		Where(squirrel.Eq{"id": userID}).
		Limit(1)

	return r.getOne(ctx, q, userID)
}

func (r *UserRepo) getOne(ctx context.Context, q squirrel.SelectBuilder, key any) (*auth.User, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var user auth.User
	querier := r.txm.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &user, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("user", key)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// Ensure interface compliance.
var _ auth.Repository = (*UserRepo)(nil)
