package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func approvedTransfer(t *testing.T, f fixture, qty int64) Transfer {
	t.Helper()
	ctx := context.Background()
	tr, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: qty, RequestedBy: 7})
	require.NoError(t, err)
	tr, err = f.workflow.ApproveTransfer(ctx, tr.ID, 8)
	require.NoError(t, err)
	return tr
}

func TestTransferHappyPath(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 50))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(2, 1, 4))
	require.NoError(t, err)

	tr, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: 20, RequestedBy: 7, Notes: "rebalance"})
	require.NoError(t, err)
	require.Equal(t, TransferPending, tr.Status)
	require.Regexp(t, `^TRF-[0-9A-F]{12}$`, tr.Code)
	require.Equal(t, 2, f.ledger.movementCount())

	tr, err = f.workflow.ApproveTransfer(ctx, tr.ID, 8)
	require.NoError(t, err)
	require.Equal(t, TransferApproved, tr.Status)
	require.Equal(t, int64(8), *tr.ApprovedBy)
	src, _ := f.ledger.cell(1, 1)
	require.Equal(t, int64(50), src.Quantity)

	tr, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, TransferCompleted, tr.Status)
	require.NotNil(t, tr.CompletedAt)

	src, _ = f.ledger.cell(1, 1)
	dst, _ := f.ledger.cell(2, 1)
	require.Equal(t, int64(30), src.Quantity)
	require.Equal(t, int64(24), dst.Quantity)

	require.Equal(t, 4, f.ledger.movementCount())
	out := f.ledger.movements[2]
	in := f.ledger.movements[3]
	require.Equal(t, MovementTransferOut, out.Type)
	require.Equal(t, int64(-20), out.Quantity)
	require.Equal(t, MovementTransferIn, in.Type)
	require.Equal(t, int64(20), in.Quantity)
	require.Equal(t, tr.ID, *out.TransferID)
	require.Equal(t, tr.ID, *in.TransferID)
	require.Contains(t, out.Notes, tr.Code)

	require.Equal(t, 1, f.metrics.transitions["completed"])
	require.Equal(t, 1, f.metrics.movements["transfer_out"])
}

func TestTransferIntoEmptyWarehouseCreatesCell(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(2, 1, 10))
	require.NoError(t, err)
	tr, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 2, ToWarehouseID: 1, ProductID: 1, Quantity: 10, RequestedBy: 7})
	require.NoError(t, err)
	_, err = f.workflow.ApproveTransfer(ctx, tr.ID, 8)
	require.NoError(t, err)
	_, err = f.workflow.ProcessTransfer(ctx, tr.ID, 8)
	require.NoError(t, err)

	src, _ := f.ledger.cell(2, 1)
	dst, ok := f.ledger.cell(1, 1)
	require.True(t, ok)
	require.Equal(t, int64(0), src.Quantity)
	require.Equal(t, int64(10), dst.Quantity)
}

func TestProcessInsufficientStockLeavesTransferApproved(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 30))
	require.NoError(t, err)
	_, err = f.engine.Reserve(ctx, ReserveInput{WarehouseID: 1, ProductID: 1, Delta: 15})
	require.NoError(t, err)
	tr := approvedTransfer(t, f, 20)

	_, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.ErrorIs(t, err, ErrInsufficientStock)

	got, err := f.workflow.GetTransfer(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, TransferApproved, got.Status)
	require.Nil(t, got.CompletedAt)
	require.Equal(t, 1, f.ledger.movementCount())

	// Retryable once stock is replenished.
	_, err = f.engine.Adjust(ctx, inbound(1, 1, 5))
	require.NoError(t, err)
	got, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.NoError(t, err)
	require.Equal(t, TransferCompleted, got.Status)
}

func TestProcessSecondLegFailureRollsBackBoth(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 50))
	require.NoError(t, err)
	tr := approvedTransfer(t, f, 20)

	injected := errors.New("disk full")
	f.ledger.failAppend = func(m Movement) error {
		if m.Type == MovementTransferIn {
			return injected
		}
		return nil
	}

	_, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.ErrorIs(t, err, injected)

	src, _ := f.ledger.cell(1, 1)
	_, dstExists := f.ledger.cell(2, 1)
	require.Equal(t, int64(50), src.Quantity)
	require.False(t, dstExists)
	require.Equal(t, 1, f.ledger.movementCount())

	got, err := f.workflow.GetTransfer(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, TransferApproved, got.Status)
}

func TestProcessIntoDeactivatedWarehouseKeepsTransferApproved(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 50))
	require.NoError(t, err)
	tr := approvedTransfer(t, f, 20)

	f.ledger.warehouses[2] = false
	_, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.workflow.GetTransfer(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, TransferApproved, got.Status)
	src, _ := f.ledger.cell(1, 1)
	_, dstExists := f.ledger.cell(2, 1)
	require.Equal(t, int64(50), src.Quantity)
	require.False(t, dstExists)
	require.Equal(t, 1, f.ledger.movementCount())

	// Same for the source side.
	f.ledger.warehouses[2] = true
	f.ledger.warehouses[1] = false
	_, err = f.workflow.ProcessTransfer(ctx, tr.ID, 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransferStateMachineClosure(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()
	_, err := f.engine.Adjust(ctx, inbound(1, 1, 100))
	require.NoError(t, err)

	pending, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: 1, RequestedBy: 7})
	require.NoError(t, err)
	_, err = f.workflow.ProcessTransfer(ctx, pending.ID, 9)
	require.ErrorIs(t, err, ErrInvalidTransition)

	approved := approvedTransfer(t, f, 1)
	_, err = f.workflow.ApproveTransfer(ctx, approved.ID, 8)
	require.ErrorIs(t, err, ErrInvalidTransition)

	completed := approvedTransfer(t, f, 1)
	_, err = f.workflow.ProcessTransfer(ctx, completed.ID, 9)
	require.NoError(t, err)

	cancelled := approvedTransfer(t, f, 1)
	_, err = f.workflow.CancelTransfer(ctx, cancelled.ID, 8, "")
	require.NoError(t, err)

	for _, id := range []int64{completed.ID, cancelled.ID} {
		_, err = f.workflow.ApproveTransfer(ctx, id, 8)
		require.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.workflow.ProcessTransfer(ctx, id, 8)
		require.ErrorIs(t, err, ErrInvalidTransition)
		_, err = f.workflow.CancelTransfer(ctx, id, 8, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	}

	// A replayed process call never moves stock twice.
	src, _ := f.ledger.cell(1, 1)
	require.Equal(t, int64(99), src.Quantity)

	_, err = f.workflow.ApproveTransfer(ctx, 4040, 8)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransferStatusTransitions(t *testing.T) {
	all := []TransferStatus{TransferPending, TransferApproved, TransferCompleted, TransferCancelled}
	legal := map[[2]TransferStatus]bool{
		{TransferPending, TransferApproved}:   true,
		{TransferPending, TransferCancelled}:  true,
		{TransferApproved, TransferCompleted}: true,
		{TransferApproved, TransferCancelled}: true,
	}
	for _, from := range all {
		for _, to := range all {
			require.Equal(t, legal[[2]TransferStatus{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	require.True(t, TransferCompleted.Terminal())
	require.True(t, TransferCancelled.Terminal())
	require.False(t, TransferApproved.Terminal())
	require.False(t, TransferStatus("shipped").Valid())
}

func TestCancelTransfer(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	tr, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: 5, RequestedBy: 7, Notes: "urgent"})
	require.NoError(t, err)

	tr, err = f.workflow.CancelTransfer(ctx, tr.ID, 7, " supplier delivered directly ")
	require.NoError(t, err)
	require.Equal(t, TransferCancelled, tr.Status)
	require.NotNil(t, tr.CancelledAt)
	require.Equal(t, "urgent\ncancelled: supplier delivered directly", tr.Notes)
	require.Equal(t, 0, f.ledger.movementCount())
}

func TestRequestTransferValidation(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 1, ProductID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 77, ProductID: 1, Quantity: 5})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.workflow.ListTransfers(ctx, TransferFilter{Status: "shipped"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Empty(t, f.ledger.transfers)
}

func TestListTransfers(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	first, err := f.workflow.RequestTransfer(ctx, TransferRequest{FromWarehouseID: 1, ToWarehouseID: 2, ProductID: 1, Quantity: 5, RequestedBy: 7})
	require.NoError(t, err)
	second := approvedTransfer(t, f, 3)

	all, err := f.workflow.ListTransfers(ctx, TransferFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)

	pending, err := f.workflow.ListTransfers(ctx, TransferFilter{Status: TransferPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
}
