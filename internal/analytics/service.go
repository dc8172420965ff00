package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// DefaultLowStockThreshold applies to cells without a configured minimum.
const DefaultLowStockThreshold int64 = 10

// Config tunes the aggregator.
type Config struct {
	LowStockDefault int64
	Logger          *slog.Logger
	Now             func() time.Time
}

// Service coordinates analytics query execution with the cache layer. It never writes
// to the ledger.
type Service struct {
	repo   Repository
	cache  *Cache
	cfg    Config
	flight singleflight.Group
}

// NewService wires a Repository with a Cache helper. A nil cache loads on every call.
func NewService(repo Repository, cache *Cache, cfg Config) *Service {
	if cfg.LowStockDefault <= 0 {
		cfg.LowStockDefault = DefaultLowStockThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: repo, cache: cache, cfg: cfg}
}

// WarehouseStats rolls up value, cost, margin, low-stock and order figures for one warehouse.
func (s *Service) WarehouseStats(ctx context.Context, warehouseID int64) (WarehouseStats, error) {
	if warehouseID <= 0 {
		return WarehouseStats{}, fmt.Errorf("%w: warehouse id must be positive", shared.ErrInvalidArgument)
	}
	now := s.cfg.Now()
	return fetch(ctx, s, keyWarehouse(warehouseID, MonthStart(now).Format("2006-01")), func(ctx context.Context) (WarehouseStats, error) {
		return s.loadWarehouseStats(ctx, warehouseID, now)
	})
}

// GlobalStats rolls up every active warehouse and ranks the top five by order profit.
func (s *Service) GlobalStats(ctx context.Context) (GlobalStats, error) {
	return fetch(ctx, s, keyGlobal(), s.loadGlobalStats)
}

// Invalidate bumps the cache version so the next read recomputes.
func (s *Service) Invalidate(ctx context.Context) error {
	_, err := s.cache.Bump(ctx)
	return err
}

// Warmup precomputes global stats and every warehouse's stats into the cache.
func (s *Service) Warmup(ctx context.Context) (int, error) {
	warehouses, err := s.repo.Warehouses(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.GlobalStats(ctx); err != nil {
		return 0, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, wh := range warehouses {
		g.Go(func() error {
			_, err := s.WarehouseStats(gctx, wh.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(warehouses) + 1, nil
}

// fetch collapses concurrent loads of the same versioned key into one repository pass.
// When redis is unreachable the value is computed directly.
func fetch[T any](ctx context.Context, s *Service, base string, load func(context.Context) (T, error)) (T, error) {
	cache := s.cache
	key, err := cache.BuildKey(ctx, base)
	if err != nil {
		s.cfg.Logger.Warn("analytics cache unavailable", "error", err, "key", base)
		cache, key = nil, base
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		var out T
		err := cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return load(ctx)
		})
		return out, err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (s *Service) loadWarehouseStats(ctx context.Context, warehouseID int64, now time.Time) (WarehouseStats, error) {
	wh, err := s.repo.Warehouse(ctx, warehouseID)
	if err != nil {
		return WarehouseStats{}, err
	}
	// Stock rows of deactivated warehouses are excluded, so their stats would read as zero.
	if wh.Inactive {
		return WarehouseStats{}, fmt.Errorf("warehouse %d is inactive: %w", warehouseID, shared.ErrNotFound)
	}
	var (
		rows   []StockRow
		orders []OrderTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.repo.StockRows(gctx, &warehouseID)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = s.repo.OrderTotals(gctx, &warehouseID, MonthStart(now))
		return err
	})
	if err := g.Wait(); err != nil {
		return WarehouseStats{}, err
	}
	var totals OrderTotals
	for _, o := range orders {
		if o.WarehouseID == warehouseID {
			totals = o
		}
	}
	return ComputeWarehouseStats(wh, rows, totals, s.cfg.LowStockDefault, now), nil
}

func (s *Service) loadGlobalStats(ctx context.Context) (GlobalStats, error) {
	var (
		warehouses []WarehouseRef
		products   int
		rows       []StockRow
		orders     []OrderTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		warehouses, err = s.repo.Warehouses(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.repo.ProductCount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.repo.StockRows(gctx, nil)
		return err
	})
	g.Go(func() error {
		var err error
		orders, err = s.repo.OrderTotals(gctx, nil, MonthStart(s.cfg.Now()))
		return err
	})
	if err := g.Wait(); err != nil {
		return GlobalStats{}, err
	}
	return ComputeGlobalStats(warehouses, products, rows, orders, s.cfg.LowStockDefault), nil
}
