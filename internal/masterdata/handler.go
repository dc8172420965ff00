// Package masterdata owns the warehouse, product and warehouse permission records the
// inventory ledger refers to.
package masterdata

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockflow/internal/masterdata/permissions"
	"github.com/odyssey-erp/stockflow/internal/masterdata/products"
	"github.com/odyssey-erp/stockflow/internal/masterdata/warehouses"
)

// Handler manages master data endpoints.
type Handler struct {
	warehouses  *warehouses.Handler
	products    *products.Handler
	permissions *permissions.Handler
}

// Module bundles the master data services so other modules can reuse them.
type Module struct {
	Warehouses  *warehouses.Service
	Products    *products.Service
	Permissions *permissions.Service
	Handler     *Handler
}

// NewModule wires repositories, services and handlers over one pool.
func NewModule(pool *pgxpool.Pool, logger *slog.Logger) *Module {
	m := &Module{
		Warehouses:  warehouses.NewService(warehouses.NewRepository(pool)),
		Products:    products.NewService(products.NewRepository(pool)),
		Permissions: permissions.NewService(permissions.NewRepository(pool)),
	}
	m.Handler = NewHandler(logger, m.Warehouses, m.Products, m.Permissions)
	return m
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, w *warehouses.Service, p *products.Service, perms *permissions.Service) *Handler {
	return &Handler{
		warehouses:  warehouses.NewHandler(logger, w),
		products:    products.NewHandler(logger, p),
		permissions: permissions.NewHandler(logger, perms),
	}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/warehouses", h.warehouses.MountRoutes)
	r.Route("/products", h.products.MountRoutes)
	r.Route("/permissions", h.permissions.MountRoutes)
}
