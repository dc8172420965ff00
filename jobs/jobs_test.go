package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockflow/internal/jobs"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type stubLister struct {
	cells []inventory.CellView
	err   error
	scope *int64
}

func (s *stubLister) LowStock(ctx context.Context, warehouseID *int64) ([]inventory.CellView, error) {
	s.scope = warehouseID
	return s.cells, s.err
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, entry shared.AuditLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func lowCell(warehouseID, productID, qty int64) inventory.CellView {
	return inventory.CellView{Cell: inventory.Cell{WarehouseID: warehouseID, ProductID: productID, Quantity: qty}}
}

func TestLowStockScan(t *testing.T) {
	lister := &stubLister{cells: []inventory.CellView{lowCell(1, 1, 3), lowCell(2, 1, 0)}}
	job := &LowStockJob{Lister: lister, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewLowStockScanTask(LowStockScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.HandleScan(context.Background(), task))
	require.Nil(t, lister.scope)

	warehouse := int64(2)
	task, err = NewLowStockScanTask(LowStockScanPayload{WarehouseID: &warehouse})
	require.NoError(t, err)
	require.NoError(t, job.HandleScan(context.Background(), task))
	require.Equal(t, int64(2), *lister.scope)

	lister.err = errors.New("db down")
	require.Error(t, job.HandleScan(context.Background(), task))

	bad := asynq.NewTask(TaskLowStockScan, []byte("{"))
	require.ErrorIs(t, job.HandleScan(context.Background(), bad), asynq.SkipRetry)
}

func TestLowStockAlertIsAudited(t *testing.T) {
	audit := &recordingAudit{}
	job := &LowStockJob{Audit: audit}

	task, err := NewLowStockAlertTask(LowStockAlertPayload{WarehouseID: 1, ProductID: 2, MovementID: 9, Quantity: 4, Threshold: 10})
	require.NoError(t, err)
	require.NoError(t, job.HandleAlert(context.Background(), task))
	require.Len(t, audit.entries, 1)
	require.Equal(t, "inventory:low_stock_alert", audit.entries[0].Action)
	require.Equal(t, "1:2", audit.entries[0].EntityID)
	require.Equal(t, int64(10), audit.entries[0].Meta["threshold"])

	empty, err := NewLowStockAlertTask(LowStockAlertPayload{})
	require.NoError(t, err)
	require.ErrorIs(t, job.HandleAlert(context.Background(), empty), asynq.SkipRetry)
}

func TestLowStockNotifierEnqueuesOnlyLowCells(t *testing.T) {
	enq := &fakeEnqueuer{}
	notifier := NewLowStockNotifier(&Client{client: enq})
	ctx := context.Background()

	require.NoError(t, notifier.HandleStockChanged(ctx, inventory.StockChangedEvent{WarehouseID: 1, ProductID: 1, Quantity: 50, Threshold: 10}))
	require.Empty(t, enq.tasks)

	require.NoError(t, notifier.HandleStockChanged(ctx, inventory.StockChangedEvent{WarehouseID: 1, ProductID: 1, MovementID: 7, Quantity: 8, Threshold: 10, LowStock: true}))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskLowStockAlert, enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 1)

	var payload LowStockAlertPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, LowStockAlertPayload{WarehouseID: 1, ProductID: 1, MovementID: 7, Quantity: 8, Threshold: 10}, payload)

	enq.err = asynq.ErrTaskIDConflict
	require.NoError(t, notifier.HandleStockChanged(ctx, inventory.StockChangedEvent{WarehouseID: 1, ProductID: 1, MovementID: 7, LowStock: true}))

	enq.err = errors.New("redis down")
	require.Error(t, notifier.HandleStockChanged(ctx, inventory.StockChangedEvent{WarehouseID: 1, ProductID: 1, MovementID: 8, LowStock: true}))
}

type stubVerifier struct {
	breaks []inventory.ChainBreak
	err    error
}

func (s stubVerifier) VerifyLedger(ctx context.Context) (int, []inventory.ChainBreak, error) {
	return 4, s.breaks, s.err
}

func TestLedgerIntegrityJob(t *testing.T) {
	job := &LedgerIntegrityJob{Verifier: stubVerifier{breaks: []inventory.ChainBreak{{WarehouseID: 1, ProductID: 1, Seq: 3, Problem: "delta mismatch"}}}}
	require.NoError(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))

	job.Verifier = stubVerifier{err: errors.New("timeout")}
	require.Error(t, job.Handle(context.Background(), NewLedgerIntegrityTask()))

	var unconfigured *LedgerIntegrityJob
	require.Error(t, unconfigured.Handle(context.Background(), NewLedgerIntegrityTask()))
}

type stubWarmer struct{ calls int }

func (s *stubWarmer) Warmup(ctx context.Context) (int, error) {
	s.calls++
	return 3, nil
}

func TestAnalyticsWarmupJob(t *testing.T) {
	warmer := &stubWarmer{}
	job := &AnalyticsWarmupJob{Analytics: warmer}
	require.NoError(t, job.Handle(context.Background(), NewAnalyticsWarmupTask()))
	require.Equal(t, 1, warmer.calls)
}

func TestInventoryCronSkipsEmptySpecs(t *testing.T) {
	entries, err := InventoryCron(Schedule{LowStockScan: "*/15 * * * *", AnalyticsWarmup: "@hourly"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, TaskLowStockScan, entries[0].Task.Type())
	require.Equal(t, TaskAnalyticsWarmup, entries[1].Task.Type())

	handlers := InventoryHandlers(&LowStockJob{}, &LedgerIntegrityJob{}, &AnalyticsWarmupJob{})
	require.Len(t, handlers, 4)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"queue":"alerts"`)
}

func TestTriggerLowStockScan(t *testing.T) {
	enq := &fakeEnqueuer{}
	client := &Client{client: enq}
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, client, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/low-stock-scan?warehouse_id=x", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/low-stock-scan?warehouse_id=4", nil))
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TaskLowStockScan, enq.tasks[0].Type())

	var payload LowStockScanPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(4), *payload.WarehouseID)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil, nil).MountRoutes)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/low-stock-scan", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
