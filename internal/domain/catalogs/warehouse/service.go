package warehouse

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// Service provides business logic for the Warehouse catalog.
type Service struct {
	repo Repository
}

// NewService creates a new Warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and persists a new warehouse.
func (s *Service) Create(ctx context.Context, wh *Warehouse) error {
	if err := wh.Validate(ctx); err != nil {
		return err
	}

	if existing, err := s.repo.GetByCode(ctx, wh.Code); err == nil && existing != nil {
		return apperror.NewDuplicate("warehouse", "code", wh.Code)
	}

	if err := s.repo.Create(ctx, wh); err != nil {
		return fmt.Errorf("create warehouse: %w", err)
	}

	logger.Info(ctx, "warehouse created", "id", wh.ID, "code", wh.Code)
	return nil
}

// Update validates and persists warehouse changes.
func (s *Service) Update(ctx context.Context, wh *Warehouse) error {
	if err := wh.Validate(ctx); err != nil {
		return err
	}
	return s.repo.Update(ctx, wh)
}

// Deactivate takes a warehouse out of service. Movements referencing it
// remain valid; new movements are rejected by the ledger.
func (s *Service) Deactivate(ctx context.Context, whID id.ID) error {
	wh, err := s.repo.GetByID(ctx, whID)
	if err != nil {
		return err
	}

	wh.Deactivate()
	if err := s.repo.Update(ctx, wh); err != nil {
		return fmt.Errorf("deactivate warehouse: %w", err)
	}

	logger.Info(ctx, "warehouse deactivated", "id", whID)
	return nil
}

// GetByID retrieves one warehouse.
func (s *Service) GetByID(ctx context.Context, whID id.ID) (*Warehouse, error) {
	return s.repo.GetByID(ctx, whID)
}

// List returns warehouses, optionally including deactivated ones.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Warehouse, error) {
	return s.repo.List(ctx, includeInactive)
}
