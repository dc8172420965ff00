package inventory

import (
	"context"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// Ledger is the single source of truth for cells, the movement log and transfers.
// Every mutation runs inside WithTx; the store serializes conflicting writers on a
// cell and reports lost races as ErrConflictRetryable.
type Ledger interface {
	WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error
	ListCells(ctx context.Context, filter CellFilter) ([]CellView, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error)
}

// LedgerTx exposes the row-level primitives available inside one atomic unit.
type LedgerTx interface {
	// GetCell reads and locks the cell; ErrCellNotFound when it has never been written.
	GetCell(ctx context.Context, warehouseID, productID int64) (Cell, error)
	// UpsertCell creates the cell with zeroed counters when absent, otherwise
	// overwrites the supplied fields.
	UpsertCell(ctx context.Context, write CellWrite) (UpsertResult, error)
	// AppendMovement assigns the next per-cell sequence and returns the new id.
	AppendMovement(ctx context.Context, movement Movement) (Movement, error)
	// MovementByToken finds a movement recorded under an idempotency token.
	MovementByToken(ctx context.Context, token string) (Movement, error)
	// EnsureActive fails with ErrNotFound unless the warehouse and product exist and are active.
	EnsureActive(ctx context.Context, warehouseID, productID int64) error
	InsertTransfer(ctx context.Context, transfer Transfer) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, transfer Transfer) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsRecorder receives domain counters; implemented by the observability package.
type MetricsRecorder interface {
	ObserveMovement(movementType string)
	ObserveRejection(op, kind string)
	ObserveRetry(op string)
	ObserveTransition(status string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveMovement(string) {}

func (nopMetrics) ObserveRejection(string, string) {}

func (nopMetrics) ObserveRetry(string) {}

func (nopMetrics) ObserveTransition(string) {}
