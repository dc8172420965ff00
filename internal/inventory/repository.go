package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Ledger = (*Repository)(nil)

type txLedger struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txLedger{tx: tx})
	})
}

const cellColumns = `i.id, i.warehouse_id, i.product_id, i.quantity, i.reserved_quantity,
	i.min_stock_level, i.max_stock_level, i.created_at, i.updated_at`

func scanCell(row pgx.Row) (Cell, error) {
	var c Cell
	err := row.Scan(&c.ID, &c.WarehouseID, &c.ProductID, &c.Quantity, &c.ReservedQuantity,
		&c.MinStockLevel, &c.MaxStockLevel, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (t *txLedger) GetCell(ctx context.Context, warehouseID, productID int64) (Cell, error) {
	cell, err := scanCell(t.tx.QueryRow(ctx, `SELECT `+cellColumns+`
FROM inventory i
WHERE i.warehouse_id = $1 AND i.product_id = $2
FOR UPDATE`, warehouseID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Cell{}, ErrCellNotFound
	}
	if err != nil {
		return Cell{}, fmt.Errorf("inventory: get cell: %w", err)
	}
	return cell, nil
}

func (t *txLedger) UpsertCell(ctx context.Context, write CellWrite) (UpsertResult, error) {
	keepThresholds := write.Thresholds == nil
	var minLevel, maxLevel *int64
	if !keepThresholds {
		minLevel, maxLevel = write.Thresholds.Min, write.Thresholds.Max
	}
	var (
		cell     Cell
		inserted bool
	)
	err := t.tx.QueryRow(ctx, `INSERT INTO inventory AS i (warehouse_id, product_id, quantity, reserved_quantity, min_stock_level, max_stock_level)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (warehouse_id, product_id) DO UPDATE SET
	quantity = EXCLUDED.quantity,
	reserved_quantity = EXCLUDED.reserved_quantity,
	min_stock_level = CASE WHEN $7 THEN i.min_stock_level ELSE EXCLUDED.min_stock_level END,
	max_stock_level = CASE WHEN $7 THEN i.max_stock_level ELSE EXCLUDED.max_stock_level END,
	updated_at = NOW()
RETURNING `+cellColumns+`, (xmax = 0)`,
		write.WarehouseID, write.ProductID, write.Quantity, write.ReservedQuantity, minLevel, maxLevel, keepThresholds,
	).Scan(&cell.ID, &cell.WarehouseID, &cell.ProductID, &cell.Quantity, &cell.ReservedQuantity,
		&cell.MinStockLevel, &cell.MaxStockLevel, &cell.CreatedAt, &cell.UpdatedAt, &inserted)
	if err != nil {
		if db.IsCheckViolation(err) {
			return UpsertResult{}, fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		}
		return UpsertResult{}, fmt.Errorf("inventory: upsert cell: %w", err)
	}
	outcome := OutcomeUpdated
	if inserted {
		outcome = OutcomeCreated
	}
	return UpsertResult{Cell: cell, Outcome: outcome}, nil
}

func (t *txLedger) AppendMovement(ctx context.Context, m Movement) (Movement, error) {
	var token *string
	if m.IdempotencyToken != "" {
		token = &m.IdempotencyToken
	}
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_movements
	(warehouse_id, product_id, seq, movement_type, quantity, previous_quantity, new_quantity,
	 reason, notes, user_id, transfer_id, idempotency_token, created_at)
VALUES ($1, $2,
	(SELECT COALESCE(MAX(seq), 0) + 1 FROM stock_movements WHERE warehouse_id = $1 AND product_id = $2),
	$3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id, seq`,
		m.WarehouseID, m.ProductID, string(m.Type), m.Quantity, m.PreviousQuantity, m.NewQuantity,
		m.Reason, m.Notes, m.ActorID, m.TransferID, token, m.CreatedAt,
	).Scan(&m.ID, &m.Seq)
	if err != nil {
		if db.IsUniqueViolation(err) {
			// Another writer committed the same token or sequence first; rerunning the
			// unit observes it.
			return Movement{}, fmt.Errorf("%w: append movement: %w", ErrConflictRetryable, err)
		}
		return Movement{}, fmt.Errorf("inventory: append movement: %w", err)
	}
	return m, nil
}

const movementColumns = `id, warehouse_id, product_id, seq, movement_type, quantity, previous_quantity,
	new_quantity, reason, notes, user_id, transfer_id, COALESCE(idempotency_token, ''), created_at`

func scanMovement(row pgx.Row) (Movement, error) {
	var (
		m   Movement
		typ string
	)
	err := row.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Seq, &typ, &m.Quantity, &m.PreviousQuantity,
		&m.NewQuantity, &m.Reason, &m.Notes, &m.ActorID, &m.TransferID, &m.IdempotencyToken, &m.CreatedAt)
	m.Type = MovementType(typ)
	return m, err
}

func (t *txLedger) MovementByToken(ctx context.Context, token string) (Movement, error) {
	m, err := scanMovement(t.tx.QueryRow(ctx, `SELECT `+movementColumns+`
FROM stock_movements WHERE idempotency_token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, ErrMovementNotFound
	}
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: movement by token: %w", err)
	}
	return m, nil
}

func (t *txLedger) EnsureActive(ctx context.Context, warehouseID, productID int64) error {
	var warehouseOK, productOK bool
	err := t.tx.QueryRow(ctx, `SELECT
	EXISTS (SELECT 1 FROM warehouses WHERE id = $1 AND is_active),
	EXISTS (SELECT 1 FROM products WHERE id = $2 AND is_active)`, warehouseID, productID).
		Scan(&warehouseOK, &productOK)
	if err != nil {
		return fmt.Errorf("inventory: ensure active: %w", err)
	}
	if !warehouseOK {
		return fmt.Errorf("%w: warehouse %d", ErrNotFound, warehouseID)
	}
	if !productOK {
		return fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	return nil
}

const transferColumns = `id, code, from_warehouse_id, to_warehouse_id, product_id, quantity, status,
	requested_by, approved_by, notes, created_at, updated_at, completed_at, cancelled_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var (
		t           Transfer
		status      string
		completedAt pgtype.Timestamptz
		cancelledAt pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.Code, &t.FromWarehouseID, &t.ToWarehouseID, &t.ProductID, &t.Quantity, &status,
		&t.RequestedBy, &t.ApprovedBy, &t.Notes, &t.CreatedAt, &t.UpdatedAt, &completedAt, &cancelledAt)
	if err != nil {
		return Transfer{}, err
	}
	t.Status = TransferStatus(status)
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	if cancelledAt.Valid {
		at := cancelledAt.Time
		t.CancelledAt = &at
	}
	return t, nil
}

func (t *txLedger) InsertTransfer(ctx context.Context, tr Transfer) (Transfer, error) {
	created, err := scanTransfer(t.tx.QueryRow(ctx, `INSERT INTO warehouse_transfers
	(code, from_warehouse_id, to_warehouse_id, product_id, quantity, status, requested_by, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+transferColumns,
		tr.Code, tr.FromWarehouseID, tr.ToWarehouseID, tr.ProductID, tr.Quantity, string(tr.Status),
		tr.RequestedBy, tr.Notes, tr.CreatedAt, tr.UpdatedAt))
	if err != nil {
		return Transfer{}, fmt.Errorf("inventory: insert transfer: %w", err)
	}
	return created, nil
}

func (t *txLedger) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	tr, err := scanTransfer(t.tx.QueryRow(ctx, `SELECT `+transferColumns+`
FROM warehouse_transfers WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("%w: id %d", ErrTransferNotFound, id)
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("inventory: get transfer: %w", err)
	}
	return tr, nil
}

func (t *txLedger) UpdateTransfer(ctx context.Context, tr Transfer) error {
	tag, err := t.tx.Exec(ctx, `UPDATE warehouse_transfers
SET status = $2, approved_by = $3, notes = $4, completed_at = $5, cancelled_at = $6, updated_at = $7
WHERE id = $1`,
		tr.ID, string(tr.Status), tr.ApprovedBy, tr.Notes, tr.CompletedAt, tr.CancelledAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inventory: update transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrTransferNotFound, tr.ID)
	}
	return nil
}

// ListCells returns cells joined with warehouse and product details.
func (r *Repository) ListCells(ctx context.Context, filter CellFilter) ([]CellView, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.WarehouseID != nil {
		where = append(where, "i.warehouse_id = "+arg(*filter.WarehouseID))
	}
	if filter.ProductID != nil {
		where = append(where, "i.product_id = "+arg(*filter.ProductID))
	}
	if filter.LowStockOnly {
		threshold := filter.LowStockDefault
		if threshold <= 0 {
			threshold = DefaultLowStockThreshold
		}
		where = append(where, "i.quantity <= COALESCE(i.min_stock_level, "+arg(threshold)+")")
	}
	if filter.OutOfStockOnly {
		where = append(where, "i.quantity = 0")
	}
	page := filter.ListFilter.Normalize()

	query := `SELECT ` + cellColumns + `, w.name, p.sku, p.name, p.category,
	COALESCE(p.unit_price, 0), COALESCE(p.cost_price, 0)
FROM inventory i
JOIN warehouses w ON w.id = i.warehouse_id
JOIN products p ON p.id = i.product_id`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY i.warehouse_id, i.product_id\nLIMIT " + arg(page.Limit) + " OFFSET " + arg(page.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list cells: %w", err)
	}
	defer rows.Close()

	var views []CellView
	for rows.Next() {
		var v CellView
		if err := rows.Scan(&v.ID, &v.WarehouseID, &v.ProductID, &v.Quantity, &v.ReservedQuantity,
			&v.MinStockLevel, &v.MaxStockLevel, &v.CreatedAt, &v.UpdatedAt,
			&v.WarehouseName, &v.ProductSKU, &v.ProductName, &v.Category, &v.UnitPrice, &v.CostPrice); err != nil {
			return nil, fmt.Errorf("inventory: scan cell: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListMovements returns the movements of one cell in sequence order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	page := filter.ListFilter.Normalize()
	var from, to pgtype.Timestamptz
	if !filter.From.IsZero() {
		from = pgtype.Timestamptz{Time: filter.From, Valid: true}
	}
	if !filter.To.IsZero() {
		to = pgtype.Timestamptz{Time: filter.To, Valid: true}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+`
FROM stock_movements
WHERE warehouse_id = $1 AND product_id = $2
	AND ($3::timestamptz IS NULL OR created_at >= $3)
	AND ($4::timestamptz IS NULL OR created_at <= $4)
ORDER BY seq
LIMIT $5 OFFSET $6`, filter.WarehouseID, filter.ProductID, from, to, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("inventory: list movements: %w", err)
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// GetTransfer loads a transfer without locking it.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	tr, err := scanTransfer(r.pool.QueryRow(ctx, `SELECT `+transferColumns+`
FROM warehouse_transfers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, fmt.Errorf("%w: id %d", ErrTransferNotFound, id)
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("inventory: get transfer: %w", err)
	}
	return tr, nil
}

// ListTransfers returns transfers newest first.
func (r *Repository) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	page := filter.ListFilter.Normalize()
	var status *string
	if filter.Status != "" {
		s := string(filter.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transferColumns+`
FROM warehouse_transfers
WHERE ($1::text IS NULL OR status = $1)
	AND ($2::bigint IS NULL OR from_warehouse_id = $2 OR to_warehouse_id = $2)
	AND ($3::bigint IS NULL OR product_id = $3)
ORDER BY id DESC
LIMIT $4 OFFSET $5`, status, filter.WarehouseID, filter.ProductID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("inventory: list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("inventory: scan transfer: %w", err)
		}
		transfers = append(transfers, tr)
	}
	return transfers, rows.Err()
}
