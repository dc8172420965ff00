package warehouses

import (
	"strings"

	"github.com/odyssey-erp/stockflow/internal/masterdata/shared"
)

func normalize(w Warehouse) Warehouse {
	w.Name = strings.TrimSpace(w.Name)
	w.Location = strings.TrimSpace(w.Location)
	return w
}

func (s *Service) validate(w Warehouse) error {
	if w.Name == "" {
		return shared.Invalid("warehouse name is required")
	}
	if len(w.Name) > 120 {
		return shared.Invalid("warehouse name is too long")
	}
	return nil
}
