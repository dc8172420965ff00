package warehouses

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, shared.ErrInvalidID
	}
	w, err := s.repo.Get(ctx, id)
	if err != nil {
		return Warehouse{}, fmt.Errorf("warehouse %d: %w", id, err)
	}
	return w, nil
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	warehouse = normalize(warehouse)
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

// Deactivate soft-deletes the warehouse; its inventory and history stay readable.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return fmt.Errorf("warehouse %d: %w", id, err)
	}
	return nil
}
