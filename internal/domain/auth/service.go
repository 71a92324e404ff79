package auth

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// Service provides login and user management.
type Service struct {
	users Repository
	jwt   *JWTService
}

// NewService creates a new auth service.
func NewService(users Repository, jwt *JWTService) *Service {
	return &Service{users: users, jwt: jwt}
}

// LoginResult carries the issued token.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// Login verifies credentials and issues an access token.
// Invalid email and invalid password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, apperror.NewUnauthorized("account is disabled")
	}
	if !user.CheckPassword(password) {
		return nil, apperror.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	logger.Info(ctx, "user logged in", "user_id", user.ID, "email", user.Email)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, email, password, fullName string, roles []string) (*User, error) {
	if email == "" {
		return nil, apperror.NewValidation("email is required").WithDetail("field", "email")
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperror.NewDuplicate("user", "email", email)
	}

	user := &User{
		ID:        id.New(),
		Email:     email,
		FullName:  fullName,
		Roles:     roles,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}
