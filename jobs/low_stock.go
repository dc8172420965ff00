package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// LowStockLister is the read side the scan needs.
type LowStockLister interface {
	LowStock(ctx context.Context, warehouseID *int64) ([]inventory.CellView, error)
}

// AuditRecorder persists alert records.
type AuditRecorder interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// LowStockJob scans for low-stock cells and records alerts raised by the engine.
type LowStockJob struct {
	Lister  LowStockLister
	Audit   AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// HandleScan processes TaskLowStockScan tasks.
func (j *LowStockJob) HandleScan(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Lister == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("low stock scan payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { err = tracker.End(err) }()

	cells, err := j.Lister.LowStock(ctx, payload.WarehouseID)
	if err != nil {
		j.logger().Error("low stock scan", slog.Any("error", err))
		return err
	}
	for _, c := range cells {
		j.logger().Warn("low stock",
			slog.Int64("warehouse_id", c.WarehouseID),
			slog.String("warehouse", c.WarehouseName),
			slog.Int64("product_id", c.ProductID),
			slog.String("sku", c.ProductSKU),
			slog.Int64("quantity", c.Quantity),
			slog.Int64("available", c.AvailableQty),
		)
	}
	if payload.WarehouseID == nil {
		j.Metrics.SetLowStockCells(len(cells))
	}
	j.logger().Info("low stock scan completed", slog.Int("cells", len(cells)))
	return nil
}

// HandleAlert processes TaskLowStockAlert tasks.
func (j *LowStockJob) HandleAlert(ctx context.Context, t *asynq.Task) (err error) {
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock alert payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.WarehouseID <= 0 || payload.ProductID <= 0 {
		return fmt.Errorf("low stock alert: missing cell: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	j.logger().Warn("low stock alert",
		slog.Int64("warehouse_id", payload.WarehouseID),
		slog.Int64("product_id", payload.ProductID),
		slog.Int64("quantity", payload.Quantity),
		slog.Int64("threshold", payload.Threshold),
	)
	if j.Audit == nil {
		return nil
	}
	return j.Audit.Record(ctx, shared.AuditLog{
		Action:   "inventory:low_stock_alert",
		Entity:   "inventory",
		EntityID: strconv.FormatInt(payload.WarehouseID, 10) + ":" + strconv.FormatInt(payload.ProductID, 10),
		Meta: map[string]any{
			"quantity":    payload.Quantity,
			"threshold":   payload.Threshold,
			"movement_id": payload.MovementID,
		},
		At: time.Now().UTC(),
	})
}

func (j *LowStockJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// AlertEnqueuer submits low-stock alert tasks.
type AlertEnqueuer interface {
	EnqueueLowStockAlert(ctx context.Context, payload LowStockAlertPayload) (*asynq.TaskInfo, error)
}

// LowStockNotifier enqueues an alert whenever a committed change leaves a cell at or
// below its threshold.
type LowStockNotifier struct {
	client AlertEnqueuer
}

func NewLowStockNotifier(client AlertEnqueuer) *LowStockNotifier {
	return &LowStockNotifier{client: client}
}

func (n *LowStockNotifier) HandleStockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	if !evt.LowStock || n.client == nil {
		return nil
	}
	_, err := n.client.EnqueueLowStockAlert(ctx, LowStockAlertPayload{
		WarehouseID: evt.WarehouseID,
		ProductID:   evt.ProductID,
		MovementID:  evt.MovementID,
		Quantity:    evt.Quantity,
		Threshold:   evt.Threshold,
	})
	return err
}

var _ inventory.IntegrationHandler = (*LowStockNotifier)(nil)
