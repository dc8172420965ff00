package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// DefaultLowStockThreshold applies to cells without an explicit minimum stock level.
const DefaultLowStockThreshold int64 = 10

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementInbound represents stock arriving at a warehouse.
	MovementInbound MovementType = "inbound"
	// MovementOutbound represents stock leaving a warehouse.
	MovementOutbound MovementType = "outbound"
	// MovementAdjustment indicates a manual correction.
	MovementAdjustment MovementType = "adjustment"
	// MovementTransferIn is the credit leg of a warehouse transfer.
	MovementTransferIn MovementType = "transfer_in"
	// MovementTransferOut is the debit leg of a warehouse transfer.
	MovementTransferOut MovementType = "transfer_out"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementInbound, MovementOutbound, MovementAdjustment, MovementTransferIn, MovementTransferOut:
		return true
	}
	return false
}

// movementTypeFor derives the type from the delta sign unless the caller overrides it.
func movementTypeFor(delta int64, override MovementType) MovementType {
	if override != "" {
		return override
	}
	if delta < 0 {
		return MovementOutbound
	}
	return MovementInbound
}

// Cell is the inventory row of one (warehouse, product) pair.
type Cell struct {
	ID               int64     `json:"id"`
	WarehouseID      int64     `json:"warehouse_id"`
	ProductID        int64     `json:"product_id"`
	Quantity         int64     `json:"quantity"`
	ReservedQuantity int64     `json:"reserved_quantity"`
	MinStockLevel    *int64    `json:"min_stock_level,omitempty"`
	MaxStockLevel    *int64    `json:"max_stock_level,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Available returns quantity minus reserved quantity. A negative result is never
// returned; it is reported as ErrIntegrity instead.
func (c Cell) Available() (int64, error) {
	available := c.Quantity - c.ReservedQuantity
	if available < 0 {
		return 0, fmt.Errorf("%w: warehouse %d product %d reserved %d exceeds quantity %d",
			ErrIntegrity, c.WarehouseID, c.ProductID, c.ReservedQuantity, c.Quantity)
	}
	return available, nil
}

// LowStockThreshold is the configured minimum or the default.
func (c Cell) LowStockThreshold(fallback int64) int64 {
	if c.MinStockLevel != nil {
		return *c.MinStockLevel
	}
	return fallback
}

// IsLowStock compares raw quantity, not available, against the threshold (inclusive).
func (c Cell) IsLowStock(fallback int64) bool {
	return c.Quantity <= c.LowStockThreshold(fallback)
}

// OutOfStock reports an empty cell.
func (c Cell) OutOfStock() bool {
	return c.Quantity == 0
}

// Thresholds carries alert levels written by UpsertCell. A nil field clears the level.
type Thresholds struct {
	Min *int64
	Max *int64
}

// CellWrite is the payload of UpsertCell. Thresholds nil keeps the stored levels.
type CellWrite struct {
	WarehouseID      int64
	ProductID        int64
	Quantity         int64
	ReservedQuantity int64
	Thresholds       *Thresholds
}

// UpsertOutcome tells whether UpsertCell created the row or updated an existing one.
type UpsertOutcome uint8

const (
	// OutcomeUpdated means the cell already existed.
	OutcomeUpdated UpsertOutcome = iota
	// OutcomeCreated means this write was the first touch of the cell.
	OutcomeCreated
)

func (o UpsertOutcome) String() string {
	if o == OutcomeCreated {
		return "created"
	}
	return "updated"
}

// UpsertResult is the cell as stored after UpsertCell.
type UpsertResult struct {
	Cell    Cell
	Outcome UpsertOutcome
}

// Movement is an immutable audit record of one quantity change.
type Movement struct {
	ID               int64        `json:"id"`
	WarehouseID      int64        `json:"warehouse_id"`
	ProductID        int64        `json:"product_id"`
	Seq              int64        `json:"seq"`
	Type             MovementType `json:"movement_type"`
	Quantity         int64        `json:"quantity"`
	PreviousQuantity int64        `json:"previous_quantity"`
	NewQuantity      int64        `json:"new_quantity"`
	Reason           string       `json:"reason"`
	Notes            string       `json:"notes,omitempty"`
	ActorID          int64        `json:"user_id"`
	TransferID       *int64       `json:"transfer_id,omitempty"`
	IdempotencyToken string       `json:"idempotency_token,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// CellView is a cell joined with its warehouse and product for listings.
type CellView struct {
	Cell
	WarehouseName string          `json:"warehouse_name"`
	ProductSKU    string          `json:"product_sku"`
	ProductName   string          `json:"product_name"`
	Category      string          `json:"category,omitempty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	AvailableQty  int64           `json:"available"`
	IsOutOfStock  bool            `json:"out_of_stock"`
	IntegrityErr  string          `json:"integrity_error,omitempty"`
}

// decorate fills the derived presentation fields.
func (v *CellView) decorate() {
	v.IsOutOfStock = v.OutOfStock()
	available, err := v.Cell.Available()
	v.AvailableQty = available
	if err != nil {
		v.IntegrityErr = err.Error()
	}
}

// CellFilter narrows ListCells.
type CellFilter struct {
	WarehouseID    *int64
	ProductID      *int64
	LowStockOnly   bool
	OutOfStockOnly bool
	// LowStockDefault is the threshold for cells without a minimum; zero means
	// DefaultLowStockThreshold.
	LowStockDefault int64
	shared.ListFilter
}

// MovementFilter narrows ListMovements (stock card).
type MovementFilter struct {
	WarehouseID int64
	ProductID   int64
	From        time.Time
	To          time.Time
	shared.ListFilter
}

// Valuation sums stock value per scope.
type Valuation struct {
	WarehouseID   *int64          `json:"warehouse_id,omitempty"`
	Cells         int             `json:"cells"`
	Units         int64           `json:"units"`
	RetailValue   decimal.Decimal `json:"retail_value"`
	CostValue     decimal.Decimal `json:"cost_value"`
	PotentialGain decimal.Decimal `json:"potential_gain"`
}

// Error kinds shared with the rest of the application.
var (
	ErrNotFound          = shared.ErrNotFound
	ErrInvalidArgument   = shared.ErrInvalidArgument
	ErrInvalidTransition = shared.ErrInvalidTransition
	ErrInsufficientStock = shared.ErrInsufficientStock
	ErrConflictRetryable = shared.ErrConflictRetryable
	ErrIntegrity         = shared.ErrIntegrity
)

// ErrCellNotFound is returned by GetCell for a pair that has never been stocked.
var ErrCellNotFound = fmt.Errorf("inventory: cell absent: %w", shared.ErrNotFound)

// ErrMovementNotFound is returned by MovementByToken for an unused token.
var ErrMovementNotFound = fmt.Errorf("inventory: movement absent: %w", shared.ErrNotFound)
