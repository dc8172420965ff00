package analytichttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/analytics"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
)

const requestTimeout = 2 * time.Second

// AnalyticsService defines the read-only stats contract used by the handler.
type AnalyticsService interface {
	WarehouseStats(ctx context.Context, warehouseID int64) (analytics.WarehouseStats, error)
	GlobalStats(ctx context.Context) (analytics.GlobalStats, error)
}

// Handler serves warehouse and global inventory analytics.
type Handler struct {
	logger  *slog.Logger
	service AnalyticsService
	limit   int
}

// NewHandler constructs the analytics HTTP handler. requestsPerMinute caps reads per
// caller; zero disables the limiter.
func NewHandler(logger *slog.Logger, service AnalyticsService, requestsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, limit: requestsPerMinute}
}

func (h *Handler) handleWarehouse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.ValidationProblem(w, map[string]string{"id": "must be a positive integer"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.service.WarehouseStats(ctx, id)
	if err != nil {
		h.logger.Error("warehouse stats failed", slog.Any("error", err), slog.Int64("warehouse_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleGlobal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	stats, err := h.service.GlobalStats(ctx)
	if err != nil {
		h.logger.Error("global stats failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
