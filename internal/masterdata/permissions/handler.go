package permissions

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
	"github.com/odyssey-erp/stockflow/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/stockflow/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{id}", h.ListByUser)
	r.Put("/", h.Grant)
}

func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.PathID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.ListByUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": perms})
}

// Grant requires the acting user to administer the target warehouse.
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	actor := internalShared.ActorFromContext(r.Context())
	if actor <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing acting user")
		return
	}
	var form GrantForm
	if !shared.DecodeForm(w, r, &form) {
		return
	}
	level, err := h.service.Level(r.Context(), actor, form.WarehouseID)
	if err != nil {
		h.logger.Error("permission lookup failed", "error", err, "actor", actor)
		httpx.RespondError(w, err)
		return
	}
	if level != LevelAdmin {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "warehouse admin required")
		return
	}
	perm, err := h.service.Grant(r.Context(), form.UserID, form.WarehouseID, Level(form.Level))
	if err != nil {
		h.logger.Warn("grant permission failed", "error", err, "warehouse_id", form.WarehouseID)
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("warehouse permission granted", "actor", actor, "user_id", perm.UserID, "warehouse_id", perm.WarehouseID, "level", perm.Level)
	httpx.JSON(w, http.StatusOK, perm)
}
