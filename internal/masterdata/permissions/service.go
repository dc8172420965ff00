package permissions

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
)

// Service answers warehouse access questions for the HTTP layer.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Grant sets the user's level on a warehouse, replacing any previous grant.
func (s *Service) Grant(ctx context.Context, userID, warehouseID int64, level Level) (Permission, error) {
	if userID <= 0 || warehouseID <= 0 {
		return Permission{}, shared.ErrInvalidID
	}
	if !level.Valid() {
		return Permission{}, shared.Invalid(fmt.Sprintf("unknown permission level %q", level))
	}
	p, err := s.repo.Upsert(ctx, Permission{UserID: userID, WarehouseID: warehouseID, Level: level})
	if err != nil {
		return Permission{}, fmt.Errorf("grant warehouse %d to user %d: %w", warehouseID, userID, err)
	}
	return p, nil
}

func (s *Service) Level(ctx context.Context, userID, warehouseID int64) (Level, error) {
	if userID <= 0 || warehouseID <= 0 {
		return LevelNone, nil
	}
	return s.repo.Level(ctx, userID, warehouseID)
}

// CanWrite reports whether the user may mutate stock in the warehouse.
func (s *Service) CanWrite(ctx context.Context, userID, warehouseID int64) (bool, error) {
	level, err := s.Level(ctx, userID, warehouseID)
	if err != nil {
		return false, err
	}
	return level.Writes(), nil
}

func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Permission, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidID
	}
	return s.repo.ListByUser(ctx, userID)
}
