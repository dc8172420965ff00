package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

const (
	// DefaultMaxRetries bounds internal retries of a ConflictRetryable unit.
	DefaultMaxRetries = 3
	defaultBackoff    = 10 * time.Millisecond
)

// EngineConfig groups optional settings.
type EngineConfig struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	LowStockDefault int64
	Logger          *slog.Logger
	Metrics         MetricsRecorder
}

// Engine applies signed deltas to single cells and records the movement alongside.
type Engine struct {
	ledger      Ledger
	audit       AuditPort
	integration IntegrationHandler
	metrics     MetricsRecorder
	logger      *slog.Logger
	maxRetries  int
	backoff     time.Duration
	lowStock    int64
	now         func() time.Time
}

// NewEngine builds Engine.
func NewEngine(ledger Ledger, audit AuditPort, cfg EngineConfig, integration IntegrationHandler) *Engine {
	e := &Engine{
		ledger:      ledger,
		audit:       audit,
		integration: integration,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxRetries:  cfg.MaxRetries,
		backoff:     cfg.RetryBackoff,
		lowStock:    cfg.LowStockDefault,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxRetries <= 0 {
		e.maxRetries = DefaultMaxRetries
	}
	if e.backoff <= 0 {
		e.backoff = defaultBackoff
	}
	if e.lowStock <= 0 {
		e.lowStock = DefaultLowStockThreshold
	}
	return e
}

// AdjustInput describes one signed quantity change.
type AdjustInput struct {
	WarehouseID int64
	ProductID   int64
	Delta       int64
	Reason      string
	ActorID     int64
	Notes       string
	// Type overrides the type derived from the delta sign.
	Type MovementType
	// IdempotencyToken, when set, must be a UUID. A repeated call with the same token
	// returns the recorded result instead of applying the delta again.
	IdempotencyToken string
}

func (in AdjustInput) validate() error {
	if in.WarehouseID <= 0 || in.ProductID <= 0 {
		return fmt.Errorf("%w: warehouse and product required", ErrInvalidArgument)
	}
	if in.Delta == 0 {
		return fmt.Errorf("%w: delta must not be zero", ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: reason required", ErrInvalidArgument)
	}
	switch in.Type {
	case "", MovementAdjustment:
	case MovementInbound:
		if in.Delta < 0 {
			return fmt.Errorf("%w: inbound movement needs a positive delta", ErrInvalidArgument)
		}
	case MovementOutbound:
		if in.Delta > 0 {
			return fmt.Errorf("%w: outbound movement needs a negative delta", ErrInvalidArgument)
		}
	case MovementTransferIn, MovementTransferOut:
		// Transfer legs are only written by the transfer workflow.
		return fmt.Errorf("%w: %s movements are recorded by transfers", ErrInvalidArgument, in.Type)
	default:
		return fmt.Errorf("%w: unknown movement type %q", ErrInvalidArgument, in.Type)
	}
	if in.IdempotencyToken != "" {
		if _, err := uuid.Parse(in.IdempotencyToken); err != nil {
			return fmt.Errorf("%w: idempotency token: %v", ErrInvalidArgument, err)
		}
	}
	return nil
}

// matches reports whether a recorded movement came from the same request.
func (in AdjustInput) matches(m Movement) bool {
	return m.WarehouseID == in.WarehouseID &&
		m.ProductID == in.ProductID &&
		m.Quantity == in.Delta &&
		m.Type == movementTypeFor(in.Delta, in.Type)
}

// AdjustResult is the outcome of Adjust.
type AdjustResult struct {
	Cell     Cell
	Movement Movement
	Outcome  UpsertOutcome
	// Replayed is set when the idempotency token had already been applied.
	Replayed bool
}

// Adjust applies input.Delta to the cell, failing with ErrInsufficientStock instead of
// clamping when the quantity would go negative.
func (e *Engine) Adjust(ctx context.Context, input AdjustInput) (AdjustResult, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	if err := input.validate(); err != nil {
		e.reject(ctx, "adjust", err)
		return AdjustResult{}, err
	}

	var result AdjustResult
	err := e.withRetry(ctx, "adjust", func() error {
		return e.ledger.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if input.IdempotencyToken != "" {
				replay, found, err := e.replay(ctx, tx, input)
				if err != nil {
					return err
				}
				if found {
					result = replay
					return nil
				}
			}
			if err := tx.EnsureActive(ctx, input.WarehouseID, input.ProductID); err != nil {
				return err
			}
			applied, err := e.apply(ctx, tx, leg{
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
				Delta:       input.Delta,
				Type:        movementTypeFor(input.Delta, input.Type),
				Reason:      input.Reason,
				Notes:       input.Notes,
				ActorID:     input.ActorID,
				Token:       input.IdempotencyToken,
			})
			if err != nil {
				return err
			}
			result = applied
			return nil
		})
	})
	if err != nil {
		e.reject(ctx, "adjust", err)
		return AdjustResult{}, err
	}
	if result.Replayed {
		e.logger.InfoContext(ctx, "inventory adjustment replayed",
			slog.String("idempotency_token", input.IdempotencyToken),
			slog.Int64("movement_id", result.Movement.ID))
		return result, nil
	}
	e.afterCommit(ctx, input.ActorID, "inventory:adjust", result)
	return result, nil
}

func (e *Engine) replay(ctx context.Context, tx LedgerTx, input AdjustInput) (AdjustResult, bool, error) {
	prior, err := tx.MovementByToken(ctx, input.IdempotencyToken)
	if errors.Is(err, ErrMovementNotFound) {
		return AdjustResult{}, false, nil
	}
	if err != nil {
		return AdjustResult{}, false, err
	}
	if !input.matches(prior) {
		return AdjustResult{}, false, fmt.Errorf("%w: idempotency token %s was used for a different adjustment",
			ErrInvalidArgument, input.IdempotencyToken)
	}
	cell, err := tx.GetCell(ctx, prior.WarehouseID, prior.ProductID)
	if err != nil {
		return AdjustResult{}, false, err
	}
	return AdjustResult{Cell: cell, Movement: prior, Outcome: OutcomeUpdated, Replayed: true}, true, nil
}

type leg struct {
	WarehouseID int64
	ProductID   int64
	Delta       int64
	Type        MovementType
	Reason      string
	Notes       string
	ActorID     int64
	TransferID  *int64
	Token       string
}

// apply is the read-modify-write of one cell plus its movement. It must run inside tx.
func (e *Engine) apply(ctx context.Context, tx LedgerTx, l leg) (AdjustResult, error) {
	cell, err := tx.GetCell(ctx, l.WarehouseID, l.ProductID)
	if err != nil {
		if !errors.Is(err, ErrCellNotFound) {
			return AdjustResult{}, err
		}
		cell = Cell{WarehouseID: l.WarehouseID, ProductID: l.ProductID}
	}

	if l.Delta > 0 && cell.Quantity > math.MaxInt64-l.Delta {
		return AdjustResult{}, fmt.Errorf("%w: warehouse %d product %d cannot hold %d more",
			ErrInvalidArgument, l.WarehouseID, l.ProductID, l.Delta)
	}
	newQty := cell.Quantity + l.Delta
	if newQty < 0 {
		return AdjustResult{}, fmt.Errorf("%w: warehouse %d product %d has %d, cannot apply %d",
			ErrInsufficientStock, l.WarehouseID, l.ProductID, cell.Quantity, l.Delta)
	}
	if l.Delta < 0 && newQty < cell.ReservedQuantity {
		return AdjustResult{}, fmt.Errorf("%w: warehouse %d product %d would keep %d against %d reserved",
			ErrInsufficientStock, l.WarehouseID, l.ProductID, newQty, cell.ReservedQuantity)
	}

	upserted, err := tx.UpsertCell(ctx, CellWrite{
		WarehouseID:      l.WarehouseID,
		ProductID:        l.ProductID,
		Quantity:         newQty,
		ReservedQuantity: cell.ReservedQuantity,
	})
	if err != nil {
		return AdjustResult{}, err
	}
	movement, err := tx.AppendMovement(ctx, Movement{
		WarehouseID:      l.WarehouseID,
		ProductID:        l.ProductID,
		Type:             l.Type,
		Quantity:         l.Delta,
		PreviousQuantity: cell.Quantity,
		NewQuantity:      newQty,
		Reason:           l.Reason,
		Notes:            l.Notes,
		ActorID:          l.ActorID,
		TransferID:       l.TransferID,
		IdempotencyToken: l.Token,
		CreatedAt:        e.now(),
	})
	if err != nil {
		return AdjustResult{}, err
	}
	return AdjustResult{Cell: upserted.Cell, Movement: movement, Outcome: upserted.Outcome}, nil
}

// ReserveInput holds or releases stock against open orders.
type ReserveInput struct {
	WarehouseID int64
	ProductID   int64
	Delta       int64
	ActorID     int64
}

// Reserve moves reservedQuantity by input.Delta. It never touches quantity and writes
// no movement.
func (e *Engine) Reserve(ctx context.Context, input ReserveInput) (Cell, error) {
	if input.WarehouseID <= 0 || input.ProductID <= 0 {
		err := fmt.Errorf("%w: warehouse and product required", ErrInvalidArgument)
		e.reject(ctx, "reserve", err)
		return Cell{}, err
	}
	if input.Delta == 0 {
		err := fmt.Errorf("%w: delta must not be zero", ErrInvalidArgument)
		e.reject(ctx, "reserve", err)
		return Cell{}, err
	}

	var cell Cell
	err := e.withRetry(ctx, "reserve", func() error {
		return e.ledger.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			if err := tx.EnsureActive(ctx, input.WarehouseID, input.ProductID); err != nil {
				return err
			}
			current, err := tx.GetCell(ctx, input.WarehouseID, input.ProductID)
			if err != nil {
				if !errors.Is(err, ErrCellNotFound) {
					return err
				}
				current = Cell{WarehouseID: input.WarehouseID, ProductID: input.ProductID}
			}
			if input.Delta > 0 && current.ReservedQuantity > math.MaxInt64-input.Delta {
				return fmt.Errorf("%w: cannot reserve %d more", ErrInvalidArgument, input.Delta)
			}
			reserved := current.ReservedQuantity + input.Delta
			if reserved < 0 {
				return fmt.Errorf("%w: cannot release %d, only %d reserved",
					ErrInsufficientStock, -input.Delta, current.ReservedQuantity)
			}
			if input.Delta > 0 {
				available, err := current.Available()
				if err != nil {
					return err
				}
				if available < input.Delta {
					return fmt.Errorf("%w: cannot reserve %d, only %d available",
						ErrInsufficientStock, input.Delta, available)
				}
			}
			upserted, err := tx.UpsertCell(ctx, CellWrite{
				WarehouseID:      input.WarehouseID,
				ProductID:        input.ProductID,
				Quantity:         current.Quantity,
				ReservedQuantity: reserved,
			})
			if err != nil {
				return err
			}
			cell = upserted.Cell
			return nil
		})
	})
	if err != nil {
		e.reject(ctx, "reserve", err)
		return Cell{}, err
	}

	e.logger.InfoContext(ctx, "inventory reservation changed",
		slog.Int64("warehouse_id", input.WarehouseID),
		slog.Int64("product_id", input.ProductID),
		slog.Int64("delta", input.Delta),
		slog.Int64("reserved", cell.ReservedQuantity))
	e.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   "inventory:reserve",
		Entity:   "inventory",
		EntityID: cellEntityID(input.WarehouseID, input.ProductID),
		Meta:     map[string]any{"delta": input.Delta, "reserved": cell.ReservedQuantity},
	})
	e.notify(ctx, StockChangedEvent{
		WarehouseID: cell.WarehouseID,
		ProductID:   cell.ProductID,
		Quantity:    cell.Quantity,
		Reserved:    cell.ReservedQuantity,
		Threshold:   cell.LowStockThreshold(e.lowStock),
		OccurredAt:  e.now(),
	})
	return cell, nil
}

// SetThresholds configures the alert levels of an existing cell.
func (e *Engine) SetThresholds(ctx context.Context, warehouseID, productID, actorID int64, thresholds Thresholds) (Cell, error) {
	if err := validateThresholds(warehouseID, productID, thresholds); err != nil {
		e.reject(ctx, "thresholds", err)
		return Cell{}, err
	}

	var cell Cell
	err := e.withRetry(ctx, "thresholds", func() error {
		return e.ledger.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
			current, err := tx.GetCell(ctx, warehouseID, productID)
			if err != nil {
				return err
			}
			upserted, err := tx.UpsertCell(ctx, CellWrite{
				WarehouseID:      warehouseID,
				ProductID:        productID,
				Quantity:         current.Quantity,
				ReservedQuantity: current.ReservedQuantity,
				Thresholds:       &thresholds,
			})
			if err != nil {
				return err
			}
			cell = upserted.Cell
			return nil
		})
	})
	if err != nil {
		e.reject(ctx, "thresholds", err)
		return Cell{}, err
	}
	e.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "inventory:thresholds",
		Entity:   "inventory",
		EntityID: cellEntityID(warehouseID, productID),
		Meta:     map[string]any{"min": thresholds.Min, "max": thresholds.Max},
	})
	return cell, nil
}

func validateThresholds(warehouseID, productID int64, t Thresholds) error {
	if warehouseID <= 0 || productID <= 0 {
		return fmt.Errorf("%w: warehouse and product required", ErrInvalidArgument)
	}
	if t.Min != nil && *t.Min < 0 {
		return fmt.Errorf("%w: min stock level must not be negative", ErrInvalidArgument)
	}
	if t.Max != nil && *t.Max < 0 {
		return fmt.Errorf("%w: max stock level must not be negative", ErrInvalidArgument)
	}
	if t.Min != nil && t.Max != nil && *t.Min > *t.Max {
		return fmt.Errorf("%w: min stock level exceeds max", ErrInvalidArgument)
	}
	return nil
}

// withRetry reruns fn while it reports ErrConflictRetryable, at most maxRetries times.
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrConflictRetryable) || attempt >= e.maxRetries {
			return err
		}
		e.metrics.ObserveRetry(op)
		e.logger.DebugContext(ctx, "inventory write conflict, retrying",
			slog.String("op", op), slog.Int("attempt", attempt+1), slog.Any("error", err))
		timer := time.NewTimer(e.backoff * time.Duration(attempt+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (e *Engine) reject(ctx context.Context, op string, err error) {
	kind := shared.KindOf(err)
	e.metrics.ObserveRejection(op, kind.String())
	switch kind {
	case shared.KindUnknown, shared.KindIntegrity:
		e.logger.ErrorContext(ctx, "inventory operation failed", slog.String("op", op), slog.Any("error", err))
	default:
		e.logger.WarnContext(ctx, "inventory operation rejected",
			slog.String("op", op), slog.String("kind", kind.String()), slog.Any("error", err))
	}
}

// afterCommit runs the post-commit hooks for applied movements; none of them can fail
// the operation.
func (e *Engine) afterCommit(ctx context.Context, actorID int64, action string, results ...AdjustResult) {
	for _, res := range results {
		mv := res.Movement
		e.metrics.ObserveMovement(string(mv.Type))
		e.logger.InfoContext(ctx, "inventory adjusted",
			slog.Int64("warehouse_id", mv.WarehouseID),
			slog.Int64("product_id", mv.ProductID),
			slog.Int64("delta", mv.Quantity),
			slog.Int64("movement_id", mv.ID),
			slog.String("outcome", res.Outcome.String()))
		meta := map[string]any{
			"movement_id": mv.ID,
			"type":        string(mv.Type),
			"delta":       mv.Quantity,
			"previous":    mv.PreviousQuantity,
			"new":         mv.NewQuantity,
			"reason":      mv.Reason,
		}
		if mv.TransferID != nil {
			meta["transfer_id"] = *mv.TransferID
		}
		e.record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "inventory",
			EntityID: cellEntityID(mv.WarehouseID, mv.ProductID),
			Meta:     meta,
		})
		e.notify(ctx, StockChangedEvent{
			WarehouseID: mv.WarehouseID,
			ProductID:   mv.ProductID,
			MovementID:  mv.ID,
			Type:        mv.Type,
			Delta:       mv.Quantity,
			Quantity:    res.Cell.Quantity,
			Reserved:    res.Cell.ReservedQuantity,
			Threshold:   res.Cell.LowStockThreshold(e.lowStock),
			LowStock:    res.Cell.IsLowStock(e.lowStock),
			TransferID:  mv.TransferID,
			OccurredAt:  mv.CreatedAt,
		})
	}
}

func (e *Engine) record(ctx context.Context, log shared.AuditLog) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, log); err != nil {
		e.logger.WarnContext(ctx, "inventory audit record failed",
			slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (e *Engine) notify(ctx context.Context, evt StockChangedEvent) {
	if e.integration == nil {
		return
	}
	if err := e.integration.HandleStockChanged(ctx, evt); err != nil {
		e.logger.WarnContext(ctx, "inventory integration hook failed",
			slog.Int64("warehouse_id", evt.WarehouseID),
			slog.Int64("product_id", evt.ProductID),
			slog.Any("error", err))
	}
}

func cellEntityID(warehouseID, productID int64) string {
	return fmt.Sprintf("%d:%d", warehouseID, productID)
}
