package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TopWarehouseLimit caps the ranking returned with global stats.
const TopWarehouseLimit = 5

var hundred = decimal.NewFromInt(100)

// WarehouseRef identifies a warehouse in creation order.
type WarehouseRef struct {
	ID       int64
	Name     string
	Inactive bool
}

// StockRow is one inventory cell joined with its product prices. Missing prices are zero.
type StockRow struct {
	WarehouseID   int64
	ProductID     int64
	Quantity      int64
	MinStockLevel *int64
	UnitPrice     decimal.Decimal
	CostPrice     decimal.Decimal
}

// OrderTotals aggregates the orders attributed to one warehouse.
type OrderTotals struct {
	WarehouseID    int64
	OrderCount     int64
	Revenue        decimal.Decimal
	Cost           decimal.Decimal
	MonthlyRevenue decimal.Decimal
	MonthlyCost    decimal.Decimal
}

func (o OrderTotals) Profit() decimal.Decimal {
	return o.Revenue.Sub(o.Cost)
}

type WarehouseStats struct {
	WarehouseID    int64           `json:"warehouse_id"`
	WarehouseName  string          `json:"warehouse_name"`
	TotalProducts  int             `json:"total_products"`
	TotalValue     decimal.Decimal `json:"total_value"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	TotalProfit    decimal.Decimal `json:"total_profit"`
	ProfitMargin   decimal.Decimal `json:"profit_margin"`
	LowStockCount  int             `json:"low_stock_count"`
	OrderCount     int64           `json:"order_count"`
	MonthlyRevenue decimal.Decimal `json:"monthly_revenue"`
	MonthlyProfit  decimal.Decimal `json:"monthly_profit"`
	Month          string          `json:"month"`
}

// TopWarehouse ranks a warehouse by the profit of its orders.
type TopWarehouse struct {
	WarehouseID   int64           `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	OrderProfit   decimal.Decimal `json:"order_profit"`
	OrderCount    int64           `json:"order_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	ProfitMargin  decimal.Decimal `json:"profit_margin"`
}

type GlobalStats struct {
	TotalWarehouses     int             `json:"total_warehouses"`
	TotalProducts       int             `json:"total_products"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	TotalProfit         decimal.Decimal `json:"total_profit"`
	ProfitMargin        decimal.Decimal `json:"profit_margin"`
	TopWarehouses       []TopWarehouse  `json:"top_warehouses"`
}

// ProfitMargin returns (value - cost) / value * 100 rounded to two places, or zero
// when value is zero.
func ProfitMargin(value, cost decimal.Decimal) decimal.Decimal {
	if value.IsZero() {
		return decimal.Zero
	}
	return value.Sub(cost).Div(value).Mul(hundred).Round(2)
}

// MonthStart is the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

type valuation struct {
	products int
	value    decimal.Decimal
	cost     decimal.Decimal
	low      int
}

func value(rows []StockRow, lowStockDefault int64) valuation {
	var v valuation
	for _, row := range rows {
		qty := decimal.NewFromInt(row.Quantity)
		v.products++
		v.value = v.value.Add(qty.Mul(row.UnitPrice))
		v.cost = v.cost.Add(qty.Mul(row.CostPrice))
		threshold := lowStockDefault
		if row.MinStockLevel != nil {
			threshold = *row.MinStockLevel
		}
		if row.Quantity <= threshold {
			v.low++
		}
	}
	return v
}

// ComputeWarehouseStats rolls up one warehouse. rows and orders must already be scoped
// to the warehouse.
func ComputeWarehouseStats(wh WarehouseRef, rows []StockRow, orders OrderTotals, lowStockDefault int64, month time.Time) WarehouseStats {
	v := value(rows, lowStockDefault)
	return WarehouseStats{
		WarehouseID:    wh.ID,
		WarehouseName:  wh.Name,
		TotalProducts:  v.products,
		TotalValue:     v.value,
		TotalCost:      v.cost,
		TotalProfit:    v.value.Sub(v.cost),
		ProfitMargin:   ProfitMargin(v.value, v.cost),
		LowStockCount:  v.low,
		OrderCount:     orders.OrderCount,
		MonthlyRevenue: orders.MonthlyRevenue,
		MonthlyProfit:  orders.MonthlyRevenue.Sub(orders.MonthlyCost),
		Month:          MonthStart(month).Format("2006-01"),
	}
}

// ComputeGlobalStats rolls up every warehouse. warehouses must be in creation order;
// ties in the ranking keep that order.
func ComputeGlobalStats(warehouses []WarehouseRef, productCount int, rows []StockRow, orders []OrderTotals, lowStockDefault int64) GlobalStats {
	byWarehouse := make(map[int64][]StockRow, len(warehouses))
	for _, row := range rows {
		byWarehouse[row.WarehouseID] = append(byWarehouse[row.WarehouseID], row)
	}
	ordersBy := make(map[int64]OrderTotals, len(orders))
	for _, o := range orders {
		ordersBy[o.WarehouseID] = o
	}

	total := value(rows, lowStockDefault)
	stats := GlobalStats{
		TotalWarehouses:     len(warehouses),
		TotalProducts:       productCount,
		TotalInventoryValue: total.value,
		TotalCost:           total.cost,
		TotalProfit:         total.value.Sub(total.cost),
		ProfitMargin:        ProfitMargin(total.value, total.cost),
		TopWarehouses:       make([]TopWarehouse, 0, len(warehouses)),
	}
	for _, wh := range warehouses {
		v := value(byWarehouse[wh.ID], lowStockDefault)
		o := ordersBy[wh.ID]
		stats.TopWarehouses = append(stats.TopWarehouses, TopWarehouse{
			WarehouseID:   wh.ID,
			WarehouseName: wh.Name,
			OrderProfit:   o.Profit(),
			OrderCount:    o.OrderCount,
			TotalValue:    v.value,
			ProfitMargin:  ProfitMargin(v.value, v.cost),
		})
	}
	sort.SliceStable(stats.TopWarehouses, func(i, j int) bool {
		return stats.TopWarehouses[i].OrderProfit.GreaterThan(stats.TopWarehouses[j].OrderProfit)
	})
	if len(stats.TopWarehouses) > TopWarehouseLimit {
		stats.TopWarehouses = stats.TopWarehouses[:TopWarehouseLimit]
	}
	return stats
}
