// Package auth provides authentication for the ledger API: credential
// verification and JWT issuance. Movements record the authenticated
// user as CreatedBy.
package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// User is an API account.
type User struct {
	ID           id.ID   `db:"id" json:"id"`
	Email        string  `db:"email" json:"email"`
	PasswordHash string  `db:"password_hash" json:"-"`
	FullName     string  `db:"full_name" json:"fullName"`
	Roles        []string `db:"roles" json:"roles"`
	IsAdmin      bool    `db:"is_admin" json:"isAdmin"`
	BranchID     *id.ID  `db:"branch_id" json:"branchId,omitempty"`
	IsActive     bool    `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// SetPassword hashes and stores the password.
func (u *User) SetPassword(plain string) error {
	if len(plain) < 8 {
		return apperror.NewValidation("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the password against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}

// Repository defines persistence operations for users.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, userID id.ID) (*User, error)
}
