package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/fees"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
)

func TestCanTransitionTable(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusProcessing, StatusOnTheWay, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:    true,
		{StatusPending, StatusCancelled}:    true,
		{StatusConfirmed, StatusProcessing}: true,
		{StatusConfirmed, StatusCancelled}:  true,
		{StatusProcessing, StatusOnTheWay}:  true,
		{StatusOnTheWay, StatusCompleted}:   true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, Status("shipped").Valid())
}

func newMachine(t *testing.T) (*StateMachine, *fixture) {
	t.Helper()
	f := newFixture(t)
	return f.svc.StateMachine(), f
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodCOD, 0, ItemInput{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)
	history := len(o.StatusHistory)

	next, err := m.Transition(ctx, o, StatusProcessing, staff, "packing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, next.Status)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Len(t, o.StatusHistory, history)
	assert.Len(t, next.StatusHistory, history+1)
	assert.Empty(t, o.PreparedBy)
}

func TestIllegalTransition(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodGCash, 0, ItemInput{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)

	_, err = m.Transition(ctx, o, StatusCompleted, staff, "")
	var se *apperr.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "pending", se.From)
	assert.Equal(t, "completed", se.To)
}

func TestConfirmRechecksStock(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodGCash, 0, ItemInput{ProductID: "p1", Qty: 10}))
	require.NoError(t, err)

	// 5 units remain, fewer than the 10 the order needs re-verified
	_, err = m.Transition(ctx, o, StatusConfirmed, staff, "")
	var se *apperr.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []apperr.Shortage{{ProductID: "p1", Requested: 10, Available: 5}}, se.Items)
	assert.Equal(t, StatusPending, o.Status)

	_, err = f.stock.ReceiveBatch(ctx, "p1", 10, time.Now(), "receiver")
	require.NoError(t, err)
	next, err := m.Transition(ctx, o, StatusConfirmed, staff, "")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, next.Status)
}

func TestCompletedSideEffectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodCOD, 0, ItemInput{ProductID: "p1", Qty: 2}))
	require.NoError(t, err)
	for _, st := range []Status{StatusProcessing, StatusOnTheWay} {
		o, err = m.Transition(ctx, o, st, staff, "")
		require.NoError(t, err)
	}

	// a retried completion of the same snapshot must not award twice
	done1, err := m.Transition(ctx, o, StatusCompleted, staff, "")
	require.NoError(t, err)
	done2, err := m.Transition(ctx, o, StatusCompleted, staff, "")
	require.NoError(t, err)

	assert.True(t, done1.PointsAwarded)
	assert.True(t, done2.PointsAwarded)
	assert.Equal(t, 200, f.balance(t, "c1"))

	_, err = m.Transition(ctx, done1, StatusCompleted, staff, "")
	assert.True(t, apperr.IsState(err))
	assert.Equal(t, 200, f.balance(t, "c1"))
}

func TestCancelRefusesProcessingOrder(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodCOD, 0, ItemInput{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)
	o, err = m.Transition(ctx, o, StatusProcessing, staff, "")
	require.NoError(t, err)

	_, err = m.Cancel(ctx, o, "late", staff)
	assert.True(t, apperr.IsState(err))
}

func TestCancelViaTransitionUsesCancel(t *testing.T) {
	ctx := context.Background()
	m, f := newMachine(t)
	o, err := f.svc.CreateOrder(ctx, input(fees.MethodCOD, 40, ItemInput{ProductID: "p1", Qty: 1}))
	require.NoError(t, err)

	next, err := m.Transition(ctx, o, StatusCancelled, staff, "out of area")
	require.NoError(t, err)
	require.NotNil(t, next.Cancellation)
	assert.Equal(t, "out of area", next.Cancellation.Reason)
	assert.Equal(t, 100, f.balance(t, "c1"))

	trail, err := f.stock.AuditTrail(ctx, "p1")
	require.NoError(t, err)
	last := trail[len(trail)-1]
	assert.Equal(t, inventory.SourceCancel, last.Source)
	assert.Equal(t, 1, last.Delta)
	assert.Equal(t, o.ID, last.TxnID)
}
