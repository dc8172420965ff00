package analytichttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/analytics"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

type stubService struct {
	calls int
}

func (s *stubService) WarehouseStats(ctx context.Context, warehouseID int64) (analytics.WarehouseStats, error) {
	s.calls++
	if warehouseID == 404 {
		return analytics.WarehouseStats{}, fmt.Errorf("warehouse 404: %w", shared.ErrNotFound)
	}
	return analytics.WarehouseStats{WarehouseID: warehouseID, TotalValue: decimal.NewFromInt(250)}, nil
}

func (s *stubService) GlobalStats(ctx context.Context) (analytics.GlobalStats, error) {
	s.calls++
	return analytics.GlobalStats{TotalWarehouses: 2, ProfitMargin: decimal.Zero}, nil
}

func newRouter(svc AnalyticsService, limit int) http.Handler {
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	r.Route("/analytics", NewHandler(nil, svc, limit).MountRoutes)
	return r
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(shared.ActorHeader, "7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestWarehouseStatsEndpoint(t *testing.T) {
	router := newRouter(&stubService{}, 0)

	rr := get(router, "/analytics/warehouses/3")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats analytics.WarehouseStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, int64(3), stats.WarehouseID)
	require.True(t, stats.TotalValue.Equal(decimal.NewFromInt(250)))

	require.Equal(t, http.StatusBadRequest, get(router, "/analytics/warehouses/zero").Code)
	require.Equal(t, http.StatusNotFound, get(router, "/analytics/warehouses/404").Code)
}

func TestGlobalStatsEndpoint(t *testing.T) {
	router := newRouter(&stubService{}, 0)

	rr := get(router, "/analytics/global")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total_warehouses":2`)
	require.Contains(t, rr.Body.String(), `"profit_margin":"0"`)
}

func TestRateLimitPerActor(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc, 2)

	require.Equal(t, http.StatusOK, get(router, "/analytics/global").Code)
	require.Equal(t, http.StatusOK, get(router, "/analytics/global").Code)
	require.Equal(t, http.StatusTooManyRequests, get(router, "/analytics/global").Code)
	require.Equal(t, 2, svc.calls)
}
