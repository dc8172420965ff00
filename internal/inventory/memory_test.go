package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

type cellKey struct {
	warehouseID int64
	productID   int64
}

type memProduct struct {
	active    bool
	unitPrice decimal.Decimal
	costPrice decimal.Decimal
}

// memoryLedger serializes every unit behind one mutex and restores a snapshot when
// the unit fails, which gives the same all-or-nothing view as the SQL store.
type memoryLedger struct {
	mu         sync.Mutex
	cells      map[cellKey]Cell
	movements  []Movement
	transfers  map[int64]Transfer
	warehouses map[int64]bool
	products   map[int64]memProduct
	nextID     int64

	// conflicts makes the next n units fail with ErrConflictRetryable before running.
	conflicts int
	attempts  int
	// failAppend injects a fault into AppendMovement.
	failAppend func(Movement) error
}

type memoryTx struct {
	l *memoryLedger
}

type memorySnapshot struct {
	cells     map[cellKey]Cell
	movements []Movement
	transfers map[int64]Transfer
	nextID    int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		cells:      make(map[cellKey]Cell),
		transfers:  make(map[int64]Transfer),
		warehouses: map[int64]bool{1: true, 2: true, 3: true},
		products: map[int64]memProduct{
			1: {active: true, unitPrice: decimal.NewFromInt(15), costPrice: decimal.NewFromInt(10)},
			2: {active: true, unitPrice: decimal.RequireFromString("2.50"), costPrice: decimal.NewFromInt(2)},
		},
	}
}

func (l *memoryLedger) snapshot() memorySnapshot {
	s := memorySnapshot{
		cells:     make(map[cellKey]Cell, len(l.cells)),
		movements: append([]Movement(nil), l.movements...),
		transfers: make(map[int64]Transfer, len(l.transfers)),
		nextID:    l.nextID,
	}
	for k, v := range l.cells {
		s.cells[k] = v
	}
	for k, v := range l.transfers {
		s.transfers[k] = v
	}
	return s
}

func (l *memoryLedger) restore(s memorySnapshot) {
	l.cells, l.movements, l.transfers, l.nextID = s.cells, s.movements, s.transfers, s.nextID
}

func (l *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.conflicts > 0 {
		l.conflicts--
		return fmt.Errorf("%w: injected", ErrConflictRetryable)
	}
	snap := l.snapshot()
	if err := fn(ctx, &memoryTx{l: l}); err != nil {
		l.restore(snap)
		return err
	}
	return nil
}

func (l *memoryLedger) cell(warehouseID, productID int64) (Cell, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cells[cellKey{warehouseID, productID}]
	return c, ok
}

func (l *memoryLedger) movementCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.movements)
}

func (l *memoryLedger) ListCells(ctx context.Context, filter CellFilter) ([]CellView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := filter.LowStockDefault
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	var views []CellView
	for _, c := range l.cells {
		if filter.WarehouseID != nil && c.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && c.ProductID != *filter.ProductID {
			continue
		}
		if filter.LowStockOnly && !c.IsLowStock(threshold) {
			continue
		}
		if filter.OutOfStockOnly && !c.OutOfStock() {
			continue
		}
		p := l.products[c.ProductID]
		views = append(views, CellView{
			Cell:          c,
			WarehouseName: fmt.Sprintf("WH-%d", c.WarehouseID),
			ProductSKU:    fmt.Sprintf("SKU-%d", c.ProductID),
			ProductName:   fmt.Sprintf("Product %d", c.ProductID),
			UnitPrice:     p.unitPrice,
			CostPrice:     p.costPrice,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].WarehouseID != views[j].WarehouseID {
			return views[i].WarehouseID < views[j].WarehouseID
		}
		return views[i].ProductID < views[j].ProductID
	})
	page := filter.ListFilter.Normalize()
	if page.Offset >= len(views) {
		return nil, nil
	}
	views = views[page.Offset:]
	if len(views) > page.Limit {
		views = views[:page.Limit]
	}
	return views, nil
}

func (l *memoryLedger) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Movement
	for _, m := range l.movements {
		if m.WarehouseID != filter.WarehouseID || m.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && m.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && m.CreatedAt.After(filter.To) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	page := filter.ListFilter.Normalize()
	if page.Offset >= len(out) {
		return nil, nil
	}
	out = out[page.Offset:]
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (l *memoryLedger) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (l *memoryLedger) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transfer
	for _, t := range l.transfers {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.WarehouseID != nil && t.FromWarehouseID != *filter.WarehouseID && t.ToWarehouseID != *filter.WarehouseID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (tx *memoryTx) GetCell(ctx context.Context, warehouseID, productID int64) (Cell, error) {
	c, ok := tx.l.cells[cellKey{warehouseID, productID}]
	if !ok {
		return Cell{}, ErrCellNotFound
	}
	return c, nil
}

func (tx *memoryTx) UpsertCell(ctx context.Context, write CellWrite) (UpsertResult, error) {
	key := cellKey{write.WarehouseID, write.ProductID}
	c, exists := tx.l.cells[key]
	if !exists {
		tx.l.nextID++
		c = Cell{ID: tx.l.nextID, WarehouseID: write.WarehouseID, ProductID: write.ProductID}
	}
	if write.Quantity < 0 || write.ReservedQuantity < 0 {
		return UpsertResult{}, fmt.Errorf("%w: check constraint", ErrInsufficientStock)
	}
	c.Quantity = write.Quantity
	c.ReservedQuantity = write.ReservedQuantity
	if write.Thresholds != nil {
		c.MinStockLevel, c.MaxStockLevel = write.Thresholds.Min, write.Thresholds.Max
	}
	tx.l.cells[key] = c
	outcome := OutcomeUpdated
	if !exists {
		outcome = OutcomeCreated
	}
	return UpsertResult{Cell: c, Outcome: outcome}, nil
}

func (tx *memoryTx) AppendMovement(ctx context.Context, m Movement) (Movement, error) {
	if tx.l.failAppend != nil {
		if err := tx.l.failAppend(m); err != nil {
			return Movement{}, err
		}
	}
	var seq int64
	for _, existing := range tx.l.movements {
		if existing.WarehouseID == m.WarehouseID && existing.ProductID == m.ProductID && existing.Seq > seq {
			seq = existing.Seq
		}
	}
	tx.l.nextID++
	m.ID = tx.l.nextID
	m.Seq = seq + 1
	tx.l.movements = append(tx.l.movements, m)
	return m, nil
}

func (tx *memoryTx) MovementByToken(ctx context.Context, token string) (Movement, error) {
	for _, m := range tx.l.movements {
		if m.IdempotencyToken == token {
			return m, nil
		}
	}
	return Movement{}, ErrMovementNotFound
}

func (tx *memoryTx) EnsureActive(ctx context.Context, warehouseID, productID int64) error {
	if !tx.l.warehouses[warehouseID] {
		return fmt.Errorf("%w: warehouse %d", ErrNotFound, warehouseID)
	}
	if !tx.l.products[productID].active {
		return fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	return nil
}

func (tx *memoryTx) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	tx.l.nextID++
	t.ID = tx.l.nextID
	tx.l.transfers[t.ID] = t
	return t, nil
}

func (tx *memoryTx) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, ok := tx.l.transfers[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (tx *memoryTx) UpdateTransfer(ctx context.Context, t Transfer) error {
	if _, ok := tx.l.transfers[t.ID]; !ok {
		return ErrTransferNotFound
	}
	tx.l.transfers[t.ID] = t
	return nil
}

type recordingMetrics struct {
	mu          sync.Mutex
	movements   map[string]int
	rejections  map[string]int
	retries     int
	transitions map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		movements:   map[string]int{},
		rejections:  map[string]int{},
		transitions: map[string]int{},
	}
}

func (m *recordingMetrics) ObserveMovement(t string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements[t]++
}

func (m *recordingMetrics) ObserveRejection(op, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[op+":"+kind]++
}

func (m *recordingMetrics) ObserveRetry(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

func (m *recordingMetrics) ObserveTransition(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[status]++
}

type fixture struct {
	ledger   *memoryLedger
	metrics  *recordingMetrics
	engine   *Engine
	workflow *Workflow
	accessor *Accessor
}

func newFixture(audit AuditPort, integration IntegrationHandler) fixture {
	ledger := newMemoryLedger()
	metrics := newRecordingMetrics()
	engine := NewEngine(ledger, audit, EngineConfig{RetryBackoff: 1, Metrics: metrics}, integration)
	return fixture{
		ledger:   ledger,
		metrics:  metrics,
		engine:   engine,
		workflow: NewWorkflow(engine),
		accessor: NewAccessor(ledger, 0),
	}
}
