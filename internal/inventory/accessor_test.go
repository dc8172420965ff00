package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

func TestLowStockBoundary(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 8))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(2, 1, 10))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(3, 1, 11))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(1, 2, 8))
	require.NoError(t, err)
	five := int64(5)
	_, err = f.engine.SetThresholds(ctx, 1, 2, 7, Thresholds{Min: &five})
	require.NoError(t, err)

	low, err := f.accessor.LowStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, low, 2)
	require.Equal(t, int64(1), low[0].WarehouseID)
	require.Equal(t, int64(8), low[0].Quantity)
	require.Equal(t, int64(2), low[1].WarehouseID)
	require.Equal(t, int64(10), low[1].Quantity)

	warehouse := int64(2)
	low, err = f.accessor.LowStock(ctx, &warehouse)
	require.NoError(t, err)
	require.Len(t, low, 1)
}

func TestLowStockIgnoresReservations(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 40))
	require.NoError(t, err)
	_, err = f.engine.Reserve(ctx, ReserveInput{WarehouseID: 1, ProductID: 1, Delta: 38})
	require.NoError(t, err)

	low, err := f.accessor.LowStock(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, low)

	all, err := f.accessor.ListAll(ctx, shared.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, int64(2), all[0].AvailableQty)
}

func TestOutOfStockAndListings(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 3))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, AdjustInput{WarehouseID: 1, ProductID: 1, Delta: -3, Reason: "outbound"})
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(1, 2, 7))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(2, 2, 7))
	require.NoError(t, err)

	out, err := f.accessor.OutOfStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].IsOutOfStock)
	require.Equal(t, int64(1), out[0].ProductID)

	byWarehouse, err := f.accessor.ListByWarehouse(ctx, 1, shared.ListFilter{})
	require.NoError(t, err)
	require.Len(t, byWarehouse, 2)

	paged, err := f.accessor.ListAll(ctx, shared.ListFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	require.Equal(t, int64(2), paged[0].WarehouseID)

	_, err = f.accessor.ListByWarehouse(ctx, 0, shared.ListFilter{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValuation(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	_, err := f.engine.Adjust(ctx, inbound(1, 1, 4))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(1, 2, 10))
	require.NoError(t, err)
	_, err = f.engine.Adjust(ctx, inbound(2, 1, 1))
	require.NoError(t, err)

	warehouse := int64(1)
	v, err := f.accessor.Valuation(ctx, &warehouse)
	require.NoError(t, err)
	require.Equal(t, 2, v.Cells)
	require.Equal(t, int64(14), v.Units)
	require.Equal(t, "85", v.RetailValue.String())
	require.Equal(t, "60", v.CostValue.String())
	require.Equal(t, "25", v.PotentialGain.String())

	global, err := f.accessor.Valuation(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, int64(15), global.Units)
	require.Equal(t, "100", global.RetailValue.String())
}

func TestAvailableSignalsIntegrityFault(t *testing.T) {
	cell := Cell{WarehouseID: 1, ProductID: 1, Quantity: 2, ReservedQuantity: 5}
	_, err := cell.Available()
	require.ErrorIs(t, err, ErrIntegrity)

	view := CellView{Cell: cell}
	view.decorate()
	require.Zero(t, view.AvailableQty)
	require.NotEmpty(t, view.IntegrityErr)
}

func TestMovementsStockCard(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	for _, delta := range []int64{5, -2, 7} {
		_, err := f.engine.Adjust(ctx, AdjustInput{WarehouseID: 1, ProductID: 1, Delta: delta, Reason: "count"})
		require.NoError(t, err)
	}

	card, err := f.accessor.Movements(ctx, MovementFilter{WarehouseID: 1, ProductID: 1})
	require.NoError(t, err)
	require.Len(t, card, 3)
	require.Equal(t, []int64{1, 2, 3}, []int64{card[0].Seq, card[1].Seq, card[2].Seq})
	require.Equal(t, int64(10), card[2].NewQuantity)

	card, err = f.accessor.Movements(ctx, MovementFilter{WarehouseID: 1, ProductID: 1, ListFilter: shared.ListFilter{Limit: 1, Offset: 1}})
	require.NoError(t, err)
	require.Len(t, card, 1)
	require.Equal(t, int64(-2), card[0].Quantity)

	_, err = f.accessor.Movements(ctx, MovementFilter{WarehouseID: 1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	now := time.Now()
	_, err = f.accessor.Movements(ctx, MovementFilter{WarehouseID: 1, ProductID: 1, From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	for _, delta := range []int64{5, 3, -4} {
		_, err := f.engine.Adjust(ctx, AdjustInput{WarehouseID: 1, ProductID: 1, Delta: delta, Reason: "count"})
		require.NoError(t, err)
	}
	cells, breaks, err := f.accessor.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cells)
	require.Empty(t, breaks)

	f.ledger.movements[1].PreviousQuantity = 6
	cell, _ := f.ledger.cell(1, 1)
	cell.Quantity = 5

	breaks, err = f.accessor.VerifyChain(ctx, cell)
	require.NoError(t, err)
	require.Len(t, breaks, 3)
	require.Equal(t, int64(2), breaks[0].Seq)
	require.Contains(t, breaks[0].Problem, "previous quantity")
	require.Contains(t, breaks[1].Problem, "delta")
	require.Contains(t, breaks[2].Problem, "cell quantity")
}
