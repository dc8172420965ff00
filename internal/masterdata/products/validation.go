package products

import (
	"strings"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
)

func normalize(p Product) Product {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	return p
}

func (s *Service) validate(p Product) error {
	if p.SKU == "" {
		return shared.Invalid("sku is required")
	}
	if strings.ContainsAny(p.SKU, " \t") {
		return shared.Invalid("sku must not contain whitespace")
	}
	if p.Name == "" {
		return shared.Invalid("product name is required")
	}
	if p.UnitPrice.Valid && p.UnitPrice.Decimal.IsNegative() {
		return shared.Invalid("unit price must not be negative")
	}
	if p.CostPrice.Valid && p.CostPrice.Decimal.IsNegative() {
		return shared.Invalid("cost price must not be negative")
	}
	return nil
}
