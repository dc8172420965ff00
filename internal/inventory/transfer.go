package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// TransferStatus is the workflow state of a warehouse transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferApproved  TransferStatus = "approved"
	TransferCompleted TransferStatus = "completed"
	TransferCancelled TransferStatus = "cancelled"
)

var transferTransitions = map[TransferStatus][]TransferStatus{
	TransferPending:  {TransferApproved, TransferCancelled},
	TransferApproved: {TransferCompleted, TransferCancelled},
}

// Valid reports whether s is a known status.
func (s TransferStatus) Valid() bool {
	switch s {
	case TransferPending, TransferApproved, TransferCompleted, TransferCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferCancelled
}

// CanTransition reports whether s -> next is legal.
func (s TransferStatus) CanTransition(next TransferStatus) bool {
	for _, allowed := range transferTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transfer relocates stock of one product between two warehouses.
type Transfer struct {
	ID              int64          `json:"id"`
	Code            string         `json:"code"`
	FromWarehouseID int64          `json:"from_warehouse_id"`
	ToWarehouseID   int64          `json:"to_warehouse_id"`
	ProductID       int64          `json:"product_id"`
	Quantity        int64          `json:"quantity"`
	Status          TransferStatus `json:"status"`
	RequestedBy     int64          `json:"requested_by"`
	ApprovedBy      *int64         `json:"approved_by,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
}

// TransferFilter narrows ListTransfers. Zero values mean every status and warehouse.
type TransferFilter struct {
	Status      TransferStatus
	WarehouseID *int64
	ProductID   *int64
	shared.ListFilter
}

// TransferRequest is the input of RequestTransfer.
type TransferRequest struct {
	FromWarehouseID int64
	ToWarehouseID   int64
	ProductID       int64
	Quantity        int64
	RequestedBy     int64
	Notes           string
}

func (r TransferRequest) validate() error {
	if r.FromWarehouseID <= 0 || r.ToWarehouseID <= 0 || r.ProductID <= 0 {
		return fmt.Errorf("%w: warehouses and product required", ErrInvalidArgument)
	}
	if r.FromWarehouseID == r.ToWarehouseID {
		return fmt.Errorf("%w: source and destination warehouse must differ", ErrInvalidArgument)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
	}
	return nil
}

// ErrTransferNotFound is returned for an unknown transfer id.
var ErrTransferNotFound = fmt.Errorf("inventory: transfer absent: %w", shared.ErrNotFound)

// Workflow drives transfers through pending -> approved -> completed, or cancelled.
// Stock moves only in ProcessTransfer, where both legs commit together.
type Workflow struct {
	engine *Engine
}

// NewWorkflow composes the transfer workflow on top of engine.
func NewWorkflow(engine *Engine) *Workflow {
	return &Workflow{engine: engine}
}

// RequestTransfer records a pending transfer. It touches neither stock nor reservations.
func (w *Workflow) RequestTransfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	e := w.engine
	if err := req.validate(); err != nil {
		e.reject(ctx, "transfer_request", err)
		return Transfer{}, err
	}
	var created Transfer
	err := e.withRetry(ctx, "transfer_request", func() error {
		return e.ledger.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if err := tx.EnsureActive(ctx, req.FromWarehouseID, req.ProductID); err != nil {
				return err
			}
			if err := tx.EnsureActive(ctx, req.ToWarehouseID, req.ProductID); err != nil {
				return err
			}
			now := e.now()
			t, err := tx.InsertTransfer(ctx, Transfer{
				Code:            newTransferCode(),
				FromWarehouseID: req.FromWarehouseID,
				ToWarehouseID:   req.ToWarehouseID,
				ProductID:       req.ProductID,
				Quantity:        req.Quantity,
				Status:          TransferPending,
				RequestedBy:     req.RequestedBy,
				Notes:           strings.TrimSpace(req.Notes),
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			if err != nil {
				return err
			}
			created = t
			return nil
		})
	})
	if err != nil {
		e.reject(ctx, "transfer_request", err)
		return Transfer{}, err
	}
	w.transitioned(ctx, req.RequestedBy, created)
	return created, nil
}

// ApproveTransfer moves a pending transfer to approved. No stock moves.
func (w *Workflow) ApproveTransfer(ctx context.Context, id, approvedBy int64) (Transfer, error) {
	return w.transition(ctx, "transfer_approve", id, approvedBy, TransferApproved,
		func(_ context.Context, _ LedgerTx, t *Transfer) ([]AdjustResult, error) {
			t.ApprovedBy = &approvedBy
			return nil, nil
		})
}

// ProcessTransfer applies the transfer_out and transfer_in legs and completes the
// transfer, all in one ledger transaction. On any failure the transfer stays approved
// and neither cell changes.
func (w *Workflow) ProcessTransfer(ctx context.Context, id, processedBy int64) (Transfer, error) {
	return w.transition(ctx, "transfer_process", id, processedBy, TransferCompleted,
		func(ctx context.Context, tx LedgerTx, t *Transfer) ([]AdjustResult, error) {
			// Either side may have been deactivated since approval.
			for _, warehouseID := range []int64{t.FromWarehouseID, t.ToWarehouseID} {
				if err := tx.EnsureActive(ctx, warehouseID, t.ProductID); err != nil {
					return nil, err
				}
			}
			// Lock both cells in warehouse id order so opposing transfers cannot deadlock.
			first, second := t.FromWarehouseID, t.ToWarehouseID
			if second < first {
				first, second = second, first
			}
			cells := make(map[int64]Cell, 2)
			for _, warehouseID := range []int64{first, second} {
				cell, err := tx.GetCell(ctx, warehouseID, t.ProductID)
				if err != nil && !isCellAbsent(err) {
					return nil, err
				}
				cells[warehouseID] = cell
			}

			source := cells[t.FromWarehouseID]
			available, err := source.Available()
			if err != nil {
				return nil, err
			}
			if available < t.Quantity {
				return nil, fmt.Errorf("%w: transfer %s needs %d, warehouse %d has %d available",
					ErrInsufficientStock, t.Code, t.Quantity, t.FromWarehouseID, available)
			}

			out, err := w.engine.apply(ctx, tx, leg{
				WarehouseID: t.FromWarehouseID,
				ProductID:   t.ProductID,
				Delta:       -t.Quantity,
				Type:        MovementTransferOut,
				Reason:      string(MovementTransferOut),
				Notes:       fmt.Sprintf("transfer %s to warehouse %d", t.Code, t.ToWarehouseID),
				ActorID:     processedBy,
				TransferID:  &t.ID,
			})
			if err != nil {
				return nil, err
			}
			in, err := w.engine.apply(ctx, tx, leg{
				WarehouseID: t.ToWarehouseID,
				ProductID:   t.ProductID,
				Delta:       t.Quantity,
				Type:        MovementTransferIn,
				Reason:      string(MovementTransferIn),
				Notes:       fmt.Sprintf("transfer %s from warehouse %d", t.Code, t.FromWarehouseID),
				ActorID:     processedBy,
				TransferID:  &t.ID,
			})
			if err != nil {
				return nil, err
			}
			completedAt := w.engine.now()
			t.CompletedAt = &completedAt
			return []AdjustResult{out, in}, nil
		})
}

// CancelTransfer cancels a pending or approved transfer. Stock was never moved, so
// there is nothing to undo.
func (w *Workflow) CancelTransfer(ctx context.Context, id, cancelledBy int64, reason string) (Transfer, error) {
	return w.transition(ctx, "transfer_cancel", id, cancelledBy, TransferCancelled,
		func(_ context.Context, _ LedgerTx, t *Transfer) ([]AdjustResult, error) {
			cancelledAt := w.engine.now()
			t.CancelledAt = &cancelledAt
			if reason = strings.TrimSpace(reason); reason != "" {
				if t.Notes != "" {
					t.Notes += "\n"
				}
				t.Notes += "cancelled: " + reason
			}
			return nil, nil
		})
}

// GetTransfer loads a transfer.
func (w *Workflow) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, fmt.Errorf("%w: transfer id required", ErrInvalidArgument)
	}
	return w.engine.ledger.GetTransfer(ctx, id)
}

// ListTransfers returns transfers newest first.
func (w *Workflow) ListTransfers(ctx context.Context, filter TransferFilter) ([]Transfer, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown transfer status %q", ErrInvalidArgument, filter.Status)
	}
	filter.ListFilter = filter.ListFilter.Normalize()
	return w.engine.ledger.ListTransfers(ctx, filter)
}

type transferMutation func(ctx context.Context, tx LedgerTx, t *Transfer) ([]AdjustResult, error)

func (w *Workflow) transition(ctx context.Context, op string, id, actorID int64, next TransferStatus, mutate transferMutation) (Transfer, error) {
	e := w.engine
	if id <= 0 {
		err := fmt.Errorf("%w: transfer id required", ErrInvalidArgument)
		e.reject(ctx, op, err)
		return Transfer{}, err
	}

	var (
		updated Transfer
		legs    []AdjustResult
	)
	err := e.withRetry(ctx, op, func() error {
		return e.ledger.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			t, err := tx.GetTransferForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !t.Status.CanTransition(next) {
				return fmt.Errorf("%w: transfer %s is %s, cannot become %s",
					ErrInvalidTransition, t.Code, t.Status, next)
			}
			results, err := mutate(ctx, tx, &t)
			if err != nil {
				return err
			}
			t.Status = next
			t.UpdatedAt = e.now()
			if err := tx.UpdateTransfer(ctx, t); err != nil {
				return err
			}
			updated, legs = t, results
			return nil
		})
	})
	if err != nil {
		e.reject(ctx, op, err)
		return Transfer{}, err
	}
	if len(legs) > 0 {
		e.afterCommit(ctx, actorID, "inventory:transfer", legs...)
	}
	w.transitioned(ctx, actorID, updated)
	return updated, nil
}

func (w *Workflow) transitioned(ctx context.Context, actorID int64, t Transfer) {
	e := w.engine
	e.metrics.ObserveTransition(string(t.Status))
	e.logger.InfoContext(ctx, "inventory transfer "+string(t.Status),
		slog.Int64("transfer_id", t.ID),
		slog.String("code", t.Code),
		slog.Int64("from_warehouse_id", t.FromWarehouseID),
		slog.Int64("to_warehouse_id", t.ToWarehouseID),
		slog.Int64("product_id", t.ProductID),
		slog.Int64("quantity", t.Quantity))
	e.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory:transfer:" + string(t.Status),
		Entity:   "warehouse_transfer",
		EntityID: t.Code,
		Meta: map[string]any{
			"transfer_id": t.ID,
			"from":        t.FromWarehouseID,
			"to":          t.ToWarehouseID,
			"product_id":  t.ProductID,
			"quantity":    t.Quantity,
		},
	})
}

func isCellAbsent(err error) bool {
	return errors.Is(err, ErrCellNotFound)
}

func newTransferCode() string {
	return "TRF-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
