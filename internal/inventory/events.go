package inventory

import (
	"context"
	"errors"
	"time"
)

// StockChangedEvent is published after a committed movement.
type StockChangedEvent struct {
	WarehouseID int64
	ProductID   int64
	MovementID  int64
	Type        MovementType
	Delta       int64
	Quantity    int64
	Reserved    int64
	Threshold   int64
	LowStock    bool
	TransferID  *int64
	OccurredAt  time.Time
}

// IntegrationHandler receives post-commit notifications. Failures are logged by the
// caller and never undo the committed operation.
type IntegrationHandler interface {
	HandleStockChanged(ctx context.Context, evt StockChangedEvent) error
}

// IntegrationHandlers fans one event out to several handlers.
type IntegrationHandlers []IntegrationHandler

// HandleStockChanged calls every handler and joins their errors.
func (hs IntegrationHandlers) HandleStockChanged(ctx context.Context, evt StockChangedEvent) error {
	var errs []error
	for _, h := range hs {
		if h == nil {
			continue
		}
		if err := h.HandleStockChanged(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
