package shared

import (
	"fmt"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

var (
	ErrNotFound   = fmt.Errorf("masterdata: resource %w", shared.ErrNotFound)
	ErrDuplicate  = fmt.Errorf("masterdata: duplicate entry: %w", shared.ErrInvalidArgument)
	ErrValidation = fmt.Errorf("masterdata: validation failed: %w", shared.ErrInvalidArgument)
	ErrInvalidID  = fmt.Errorf("masterdata: invalid ID: %w", shared.ErrInvalidArgument)
)

// Invalid wraps a field message as ErrValidation.
func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
