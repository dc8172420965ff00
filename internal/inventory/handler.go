package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Authorizer answers "may this user write to this warehouse"; the core itself trusts
// whatever the HTTP layer decided.
type Authorizer interface {
	CanWrite(ctx context.Context, userID, warehouseID int64) (bool, error)
}

// Handler exposes the inventory core over JSON.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	workflow  *Workflow
	accessor  *Accessor
	authz     Authorizer
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the inventory handler. requestsPerMinute limits mutating
// routes per client; <= 0 disables the limiter.
func NewHandler(logger *slog.Logger, engine *Engine, workflow *Workflow, accessor *Accessor, authz Authorizer, requestsPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := func(next http.Handler) http.Handler { return next }
	if requestsPerMinute > 0 {
		limiter = httprate.Limit(requestsPerMinute, time.Minute,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
			}),
		)
	}
	return &Handler{
		logger:    logger,
		engine:    engine,
		workflow:  workflow,
		accessor:  accessor,
		authz:     authz,
		validate:  validator.New(),
		rateLimit: limiter,
	}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleListAll)
	r.Get("/warehouses/{id}", h.handleListWarehouse)
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/out-of-stock", h.handleOutOfStock)
	r.Get("/valuation", h.handleValuation)
	r.Get("/movements", h.handleMovements)
	r.Get("/transfers", h.handleListTransfers)
	r.Get("/transfers/{id}", h.handleGetTransfer)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/adjustments", h.handleAdjust)
		r.Post("/reservations", h.handleReserve)
		r.Put("/thresholds", h.handleThresholds)
		r.Post("/transfers", h.handleRequestTransfer)
		r.Post("/transfers/{id}/approve", h.handleApproveTransfer)
		r.Post("/transfers/{id}/process", h.handleProcessTransfer)
		r.Post("/transfers/{id}/cancel", h.handleCancelTransfer)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor > 0 {
		return "user:" + strconv.FormatInt(actor, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type adjustRequest struct {
	WarehouseID      int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID        int64  `json:"product_id" validate:"required,gt=0"`
	Delta            int64  `json:"delta" validate:"required"`
	Reason           string `json:"reason" validate:"required,max=64"`
	Notes            string `json:"notes" validate:"max=1000"`
	Type             string `json:"movement_type" validate:"omitempty,oneof=inbound outbound adjustment"`
	IdempotencyToken string `json:"idempotency_token" validate:"omitempty,uuid"`
}

type reserveRequest struct {
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
	ProductID   int64 `json:"product_id" validate:"required,gt=0"`
	Delta       int64 `json:"delta" validate:"required"`
}

type thresholdsRequest struct {
	WarehouseID   int64  `json:"warehouse_id" validate:"required,gt=0"`
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	MinStockLevel *int64 `json:"min_stock_level" validate:"omitempty,gte=0"`
	MaxStockLevel *int64 `json:"max_stock_level" validate:"omitempty,gte=0"`
}

type transferRequest struct {
	FromWarehouseID int64  `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64  `json:"to_warehouse_id" validate:"required,gt=0,nefield=FromWarehouseID"`
	ProductID       int64  `json:"product_id" validate:"required,gt=0"`
	Quantity        int64  `json:"quantity" validate:"required,gt=0"`
	Notes           string `json:"notes" validate:"max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.IdempotencyToken == "" {
		req.IdempotencyToken = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	actor, ok := h.authorize(w, r, req.WarehouseID)
	if !ok {
		return
	}
	result, err := h.engine.Adjust(r.Context(), AdjustInput{
		WarehouseID:      req.WarehouseID,
		ProductID:        req.ProductID,
		Delta:            req.Delta,
		Reason:           req.Reason,
		ActorID:          actor,
		Notes:            req.Notes,
		Type:             MovementType(req.Type),
		IdempotencyToken: req.IdempotencyToken,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if result.Outcome == OutcomeCreated {
		status = http.StatusCreated
	}
	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	httpx.JSON(w, status, map[string]any{
		"cell":     result.Cell,
		"movement": result.Movement,
		"outcome":  result.Outcome.String(),
	})
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.authorize(w, r, req.WarehouseID)
	if !ok {
		return
	}
	cell, err := h.engine.Reserve(r.Context(), ReserveInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Delta:       req.Delta,
		ActorID:     actor,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cell)
}

func (h *Handler) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.authorize(w, r, req.WarehouseID)
	if !ok {
		return
	}
	cell, err := h.engine.SetThresholds(r.Context(), req.WarehouseID, req.ProductID, actor,
		Thresholds{Min: req.MinStockLevel, Max: req.MaxStockLevel})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cell)
}

func (h *Handler) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, ok := h.authorize(w, r, req.FromWarehouseID)
	if !ok {
		return
	}
	transfer, err := h.workflow.RequestTransfer(r.Context(), TransferRequest{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		RequestedBy:     actor,
		Notes:           req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	h.transferAction(w, r, sourceOnly, func(ctx context.Context, id, actor int64) (Transfer, error) {
		return h.workflow.ApproveTransfer(ctx, id, actor)
	})
}

func (h *Handler) handleProcessTransfer(w http.ResponseWriter, r *http.Request) {
	h.transferAction(w, r, bothSides, func(ctx context.Context, id, actor int64) (Transfer, error) {
		return h.workflow.ProcessTransfer(ctx, id, actor)
	})
}

func (h *Handler) handleCancelTransfer(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	h.transferAction(w, r, sourceOnly, func(ctx context.Context, id, actor int64) (Transfer, error) {
		return h.workflow.CancelTransfer(ctx, id, actor, req.Reason)
	})
}

func sourceOnly(t Transfer) []int64 { return []int64{t.FromWarehouseID} }

// bothSides covers process, which writes a leg into each warehouse.
func bothSides(t Transfer) []int64 { return []int64{t.FromWarehouseID, t.ToWarehouseID} }

// transferAction authorizes against the warehouses scope picks from the transfer before acting.
func (h *Handler) transferAction(w http.ResponseWriter, r *http.Request, scope func(Transfer) []int64, act func(ctx context.Context, id, actor int64) (Transfer, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	current, err := h.workflow.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var actor int64
	for _, warehouseID := range scope(current) {
		if actor, ok = h.authorize(w, r, warehouseID); !ok {
			return
		}
	}
	transfer, err := act(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	transfer, err := h.workflow.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, errs := listFilter(q.Get("limit"), q.Get("offset"))
	warehouseID := queryID(q.Get("warehouse_id"), "warehouse_id", errs)
	productID := queryID(q.Get("product_id"), "product_id", errs)
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	transfers, err := h.workflow.ListTransfers(r.Context(), TransferFilter{
		Status:      TransferStatus(q.Get("status")),
		WarehouseID: warehouseID,
		ProductID:   productID,
		ListFilter:  page,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers, "limit": page.Normalize().Limit, "offset": page.Offset})
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	page, errs := listFilter(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	cells, err := h.accessor.ListAll(r.Context(), page)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": cells})
}

func (h *Handler) handleListWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	page, errs := listFilter(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	cells, err := h.accessor.ListByWarehouse(r.Context(), id, page)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": cells})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	h.scoped(w, r, h.accessor.LowStock)
}

func (h *Handler) handleOutOfStock(w http.ResponseWriter, r *http.Request) {
	h.scoped(w, r, h.accessor.OutOfStock)
}

func (h *Handler) scoped(w http.ResponseWriter, r *http.Request, load func(context.Context, *int64) ([]CellView, error)) {
	errs := map[string]string{}
	warehouseID := queryID(r.URL.Query().Get("warehouse_id"), "warehouse_id", errs)
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	cells, err := load(r.Context(), warehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": cells, "count": len(cells)})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	errs := map[string]string{}
	warehouseID := queryID(r.URL.Query().Get("warehouse_id"), "warehouse_id", errs)
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	valuation, err := h.accessor.Valuation(r.Context(), warehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, valuation)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, errs := listFilter(q.Get("limit"), q.Get("offset"))
	warehouseID := queryID(q.Get("warehouse_id"), "warehouse_id", errs)
	productID := queryID(q.Get("product_id"), "product_id", errs)
	if warehouseID == nil {
		errs["warehouse_id"] = "required"
	}
	if productID == nil {
		errs["product_id"] = "required"
	}
	var from, to time.Time
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			errs["from"] = "expected YYYY-MM-DD"
		}
		from = parsed
	}
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			errs["to"] = "expected YYYY-MM-DD"
		} else {
			// Set to end of day
			to = parsed.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if len(errs) > 0 {
		httpx.ValidationProblem(w, errs)
		return
	}
	movements, err := h.accessor.Movements(r.Context(), MovementFilter{
		WarehouseID: *warehouseID,
		ProductID:   *productID,
		From:        from,
		To:          to,
		ListFilter:  page,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": movements})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.ProblemWithType(w, http.StatusBadRequest, shared.KindInvalidArgument.String(), "Invalid JSON body", err.Error())
		return false
	}
	return h.validateBody(w, dst)
}

func (h *Handler) validateBody(w http.ResponseWriter, dst any) bool {
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, err)
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fieldErr := range fieldErrs {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

// decodeOptional is decode for bodies that may be absent. Chunked requests report
// ContentLength -1, so emptiness is detected from the decoder.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	err := httpx.DecodeJSON(r, dst)
	if errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		httpx.ProblemWithType(w, http.StatusBadRequest, shared.KindInvalidArgument.String(), "Invalid JSON body", err.Error())
		return false
	}
	return h.validateBody(w, dst)
}

// authorize resolves the acting user and checks write access to warehouseID.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, warehouseID int64) (int64, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing "+shared.ActorHeader+" header")
		return 0, false
	}
	if h.authz == nil {
		return actor, true
	}
	allowed, err := h.authz.CanWrite(r.Context(), actor, warehouseID)
	if err != nil {
		h.logger.Error("inventory permission lookup failed", slog.Int64("user_id", actor), slog.Any("error", err))
		httpx.RespondError(w, err)
		return 0, false
	}
	if !allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no write access to warehouse "+strconv.FormatInt(warehouseID, 10))
		return 0, false
	}
	return actor, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.ValidationProblem(w, map[string]string{"id": "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryID(raw, field string, errs map[string]string) *int64 {
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		errs[field] = "must be a positive integer"
		return nil
	}
	return &id
}

func listFilter(limitRaw, offsetRaw string) (shared.ListFilter, map[string]string) {
	errs := map[string]string{}
	var page shared.ListFilter
	if limitRaw != "" {
		limit, err := strconv.Atoi(limitRaw)
		if err != nil || limit < 0 {
			errs["limit"] = "must be a non-negative integer"
		}
		page.Limit = limit
	}
	if offsetRaw != "" {
		offset, err := strconv.Atoi(offsetRaw)
		if err != nil || offset < 0 {
			errs["offset"] = "must be a non-negative integer"
		}
		page.Offset = offset
	}
	return page, errs
}
