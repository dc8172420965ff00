package jobs

// Schedule holds cron specs for the periodic inventory jobs. Empty specs are skipped.
type Schedule struct {
	LowStockScan    string
	LedgerIntegrity string
	AnalyticsWarmup string
}

// InventoryHandlers maps every inventory task type to its handler.
func InventoryHandlers(lowStock *LowStockJob, integrity *LedgerIntegrityJob, warmup *AnalyticsWarmupJob) []TaskHandler {
	return []TaskHandler{
		{Type: TaskLowStockScan, Handler: lowStock.HandleScan},
		{Type: TaskLowStockAlert, Handler: lowStock.HandleAlert},
		{Type: TaskLedgerIntegrity, Handler: integrity.Handle},
		{Type: TaskAnalyticsWarmup, Handler: warmup.Handle},
	}
}

// InventoryCron builds the scheduler entries for s.
func InventoryCron(s Schedule) ([]CronRegistration, error) {
	scan, err := NewLowStockScanTask(LowStockScanPayload{})
	if err != nil {
		return nil, err
	}
	entries := []CronRegistration{
		{Spec: s.LowStockScan, Task: scan},
		{Spec: s.LedgerIntegrity, Task: NewLedgerIntegrityTask()},
		{Spec: s.AnalyticsWarmup, Task: NewAnalyticsWarmupTask()},
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Spec != "" {
			out = append(out, e)
		}
	}
	return out, nil
}
