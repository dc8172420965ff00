package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Repository exposes the read-only queries the aggregator relies on.
type Repository interface {
	Warehouse(ctx context.Context, id int64) (WarehouseRef, error)
	Warehouses(ctx context.Context) ([]WarehouseRef, error)
	ProductCount(ctx context.Context) (int, error)
	StockRows(ctx context.Context, warehouseID *int64) ([]StockRow, error)
	OrderTotals(ctx context.Context, warehouseID *int64, monthStart time.Time) ([]OrderTotals, error)
}

// PgRepository reads analytics rows with pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Warehouse(ctx context.Context, id int64) (WarehouseRef, error) {
	var wh WarehouseRef
	err := r.pool.QueryRow(ctx, `SELECT id, name, NOT is_active FROM warehouses WHERE id = $1`, id).Scan(&wh.ID, &wh.Name, &wh.Inactive)
	if errors.Is(err, pgx.ErrNoRows) {
		return WarehouseRef{}, fmt.Errorf("warehouse %d: %w", id, shared.ErrNotFound)
	}
	return wh, err
}

func (r *PgRepository) Warehouses(ctx context.Context) ([]WarehouseRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM warehouses WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (WarehouseRef, error) {
		var wh WarehouseRef
		err := row.Scan(&wh.ID, &wh.Name)
		return wh, err
	})
}

func (r *PgRepository) ProductCount(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE is_active`).Scan(&n)
	return n, err
}

func (r *PgRepository) StockRows(ctx context.Context, warehouseID *int64) ([]StockRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.warehouse_id, i.product_id, i.quantity, i.min_stock_level,
       COALESCE(p.unit_price, 0), COALESCE(p.cost_price, 0)
FROM inventory i
JOIN products p ON p.id = i.product_id
JOIN warehouses w ON w.id = i.warehouse_id
WHERE w.is_active AND ($1::BIGINT IS NULL OR i.warehouse_id = $1)
ORDER BY i.warehouse_id, i.product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockRow, error) {
		var s StockRow
		err := row.Scan(&s.WarehouseID, &s.ProductID, &s.Quantity, &s.MinStockLevel, &s.UnitPrice, &s.CostPrice)
		return s, err
	})
}

// OrderTotals skips cancelled orders and orders without a warehouse.
func (r *PgRepository) OrderTotals(ctx context.Context, warehouseID *int64, monthStart time.Time) ([]OrderTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT warehouse_id,
       COUNT(*),
       COALESCE(SUM(total_amount), 0),
       COALESCE(SUM(total_cost), 0),
       COALESCE(SUM(total_amount) FILTER (WHERE created_at >= $2 AND created_at < $3), 0),
       COALESCE(SUM(total_cost) FILTER (WHERE created_at >= $2 AND created_at < $3), 0)
FROM orders
WHERE warehouse_id IS NOT NULL AND status <> 'cancelled'
  AND ($1::BIGINT IS NULL OR warehouse_id = $1)
GROUP BY warehouse_id
ORDER BY warehouse_id`, warehouseID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OrderTotals, error) {
		var o OrderTotals
		err := row.Scan(&o.WarehouseID, &o.OrderCount, &o.Revenue, &o.Cost, &o.MonthlyRevenue, &o.MonthlyCost)
		return o, err
	})
}
