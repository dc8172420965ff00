package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Accessor answers read-only stock queries. It never mutates the ledger.
type Accessor struct {
	ledger          Ledger
	lowStockDefault int64
}

// NewAccessor builds Accessor. lowStockDefault <= 0 uses DefaultLowStockThreshold.
func NewAccessor(ledger Ledger, lowStockDefault int64) *Accessor {
	if lowStockDefault <= 0 {
		lowStockDefault = DefaultLowStockThreshold
	}
	return &Accessor{ledger: ledger, lowStockDefault: lowStockDefault}
}

// LowStockDefault is the threshold applied to cells without a minimum.
func (a *Accessor) LowStockDefault() int64 {
	return a.lowStockDefault
}

// ListByWarehouse pages the cells of one warehouse with product details.
func (a *Accessor) ListByWarehouse(ctx context.Context, warehouseID int64, page shared.ListFilter) ([]CellView, error) {
	if warehouseID <= 0 {
		return nil, fmt.Errorf("%w: warehouse id required", ErrInvalidArgument)
	}
	return a.list(ctx, CellFilter{WarehouseID: &warehouseID, ListFilter: page.Normalize()})
}

// ListAll pages every cell with warehouse and product details.
func (a *Accessor) ListAll(ctx context.Context, page shared.ListFilter) ([]CellView, error) {
	return a.list(ctx, CellFilter{ListFilter: page.Normalize()})
}

// LowStock returns every cell with quantity <= coalesce(min stock level, default),
// optionally limited to one warehouse. Reserved quantity is not considered.
func (a *Accessor) LowStock(ctx context.Context, warehouseID *int64) ([]CellView, error) {
	return a.collect(ctx, CellFilter{WarehouseID: warehouseID, LowStockOnly: true})
}

// OutOfStock returns every cell with zero quantity.
func (a *Accessor) OutOfStock(ctx context.Context, warehouseID *int64) ([]CellView, error) {
	return a.collect(ctx, CellFilter{WarehouseID: warehouseID, OutOfStockOnly: true})
}

// Valuation sums quantity x cost price and quantity x unit price. Missing prices count as zero.
func (a *Accessor) Valuation(ctx context.Context, warehouseID *int64) (Valuation, error) {
	cells, err := a.collect(ctx, CellFilter{WarehouseID: warehouseID})
	if err != nil {
		return Valuation{}, err
	}
	v := Valuation{WarehouseID: warehouseID, RetailValue: decimal.Zero, CostValue: decimal.Zero}
	for _, c := range cells {
		qty := decimal.NewFromInt(c.Quantity)
		v.Cells++
		v.Units += c.Quantity
		v.RetailValue = v.RetailValue.Add(qty.Mul(c.UnitPrice))
		v.CostValue = v.CostValue.Add(qty.Mul(c.CostPrice))
	}
	v.PotentialGain = v.RetailValue.Sub(v.CostValue)
	return v, nil
}

// Movements returns the stock card of one cell in sequence order.
func (a *Accessor) Movements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.WarehouseID <= 0 || filter.ProductID <= 0 {
		return nil, fmt.Errorf("%w: warehouse and product required", ErrInvalidArgument)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range end before start", ErrInvalidArgument)
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return a.ledger.ListMovements(ctx, filter)
}

// ChainBreak describes one place where a cell's movement log does not chain.
type ChainBreak struct {
	WarehouseID int64  `json:"warehouse_id"`
	ProductID   int64  `json:"product_id"`
	Seq         int64  `json:"seq"`
	Problem     string `json:"problem"`
}

// VerifyChain walks the movement log of one cell: sequence numbers are contiguous,
// each previous quantity equals the prior new quantity, each delta equals new minus
// previous, and the last new quantity equals the stored cell.
func (a *Accessor) VerifyChain(ctx context.Context, cell Cell) ([]ChainBreak, error) {
	var (
		breaks   []ChainBreak
		expected int64
		lastQty  int64
		offset   int
	)
	brk := func(seq int64, format string, args ...any) {
		breaks = append(breaks, ChainBreak{
			WarehouseID: cell.WarehouseID,
			ProductID:   cell.ProductID,
			Seq:         seq,
			Problem:     fmt.Sprintf(format, args...),
		})
	}
	for {
		page, err := a.ledger.ListMovements(ctx, MovementFilter{
			WarehouseID: cell.WarehouseID,
			ProductID:   cell.ProductID,
			ListFilter:  shared.ListFilter{Limit: shared.MaxLimit, Offset: offset},
		})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			expected++
			if m.Seq != expected {
				brk(m.Seq, "sequence gap: expected %d", expected)
				expected = m.Seq
			}
			if m.PreviousQuantity != lastQty {
				brk(m.Seq, "previous quantity %d does not follow %d", m.PreviousQuantity, lastQty)
			}
			if m.NewQuantity-m.PreviousQuantity != m.Quantity {
				brk(m.Seq, "delta %d does not match %d -> %d", m.Quantity, m.PreviousQuantity, m.NewQuantity)
			}
			lastQty = m.NewQuantity
		}
		if len(page) < shared.MaxLimit {
			break
		}
		offset += len(page)
	}
	if lastQty != cell.Quantity {
		brk(expected, "cell quantity %d differs from last movement %d", cell.Quantity, lastQty)
	}
	return breaks, nil
}

// VerifyLedger runs VerifyChain over every cell.
func (a *Accessor) VerifyLedger(ctx context.Context) (cells int, breaks []ChainBreak, err error) {
	all, err := a.collect(ctx, CellFilter{})
	if err != nil {
		return 0, nil, err
	}
	for _, view := range all {
		found, err := a.VerifyChain(ctx, view.Cell)
		if err != nil {
			return cells, breaks, err
		}
		cells++
		breaks = append(breaks, found...)
	}
	return cells, breaks, nil
}

func (a *Accessor) list(ctx context.Context, filter CellFilter) ([]CellView, error) {
	filter.LowStockDefault = a.lowStockDefault
	views, err := a.ledger.ListCells(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].decorate()
	}
	return views, nil
}

// collect drains every page of filter.
func (a *Accessor) collect(ctx context.Context, filter CellFilter) ([]CellView, error) {
	var out []CellView
	filter.ListFilter = shared.ListFilter{Limit: shared.MaxLimit}
	for {
		page, err := a.list(ctx, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			return out, nil
		}
		filter.Offset += len(page)
	}
}
