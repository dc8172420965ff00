package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries low-stock notifications so a scan backlog never delays them.
	QueueAlerts = "alerts"

	TaskLowStockScan    = "inventory:low_stock_scan"
	TaskLowStockAlert   = "inventory:low_stock_alert"
	TaskLedgerIntegrity = "inventory:ledger_integrity"
	TaskAnalyticsWarmup = "analytics:warmup"
)

// LowStockScanPayload scopes a scan to one warehouse; nil scans all of them.
type LowStockScanPayload struct {
	WarehouseID *int64 `json:"warehouse_id,omitempty"`
}

// LowStockAlertPayload describes the cell that reached its threshold.
type LowStockAlertPayload struct {
	WarehouseID int64 `json:"warehouse_id"`
	ProductID   int64 `json:"product_id"`
	MovementID  int64 `json:"movement_id,omitempty"`
	Quantity    int64 `json:"quantity"`
	Threshold   int64 `json:"threshold"`
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(payload LowStockScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, data), nil
}

// NewLowStockAlertTask constructs an Asynq task.
func NewLowStockAlertTask(payload LowStockAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, data, asynq.Queue(QueueAlerts), asynq.MaxRetry(5)), nil
}

// NewLedgerIntegrityTask constructs an Asynq task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewAnalyticsWarmupTask constructs an Asynq task.
func NewAnalyticsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAnalyticsWarmup, nil)
}
