package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product entity. A missing price is NULL and counts as zero in
// valuations.
type Product struct {
	ID        int64               `json:"id"`
	SKU       string              `json:"sku"`
	Name      string              `json:"name"`
	Category  string              `json:"category"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	CostPrice decimal.NullDecimal `json:"cost_price"`
	IsActive  bool                `json:"is_active"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type ProductForm struct {
	SKU       string           `json:"sku" validate:"required,max=64"`
	Name      string           `json:"name" validate:"required,max=200"`
	Category  string           `json:"category" validate:"max=120"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	CostPrice *decimal.Decimal `json:"cost_price"`
}

// Product converts the form into an entity.
func (f ProductForm) Product() Product {
	p := Product{SKU: f.SKU, Name: f.Name, Category: f.Category}
	if f.UnitPrice != nil {
		p.UnitPrice = decimal.NewNullDecimal(*f.UnitPrice)
	}
	if f.CostPrice != nil {
		p.CostPrice = decimal.NewNullDecimal(*f.CostPrice)
	}
	return p
}
