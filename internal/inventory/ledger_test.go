package inventory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestLedger(t *testing.T, product string) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	store.AddProduct(product)
	return NewLedger(LedgerDeps{Store: store}), store
}

func receive(t *testing.T, l *Ledger, product string, qty int, at time.Time) StockBatch {
	t.Helper()
	b, err := l.ReceiveBatch(context.Background(), product, qty, at, "receiver")
	require.NoError(t, err)
	return b
}

func assertStockConsistent(t *testing.T, l *Ledger, product string) {
	t.Helper()
	ctx := context.Background()
	batches, err := l.Batches(ctx, product)
	require.NoError(t, err)
	cached, err := l.CachedStock(ctx, product)
	require.NoError(t, err)
	assert.Equal(t, sumRemaining(batches), cached, "cached stock drifted from batch sum")
}

func TestDeductFIFOScenarioA(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	b1 := receive(t, l, "p1", 5, day("2024-01-01"))
	b2 := receive(t, l, "p1", 10, day("2024-02-01"))

	allocs, err := l.DeductFIFO(ctx, "p1", 8, TxnInfo{TxnID: "ONLINE-000001", Actor: "c1", Source: SourceOnlineOrder})
	require.NoError(t, err)
	assert.Equal(t, []Allocation{
		{BatchID: b1.ID, ProductID: "p1", Quantity: 5},
		{BatchID: b2.ID, ProductID: "p1", Quantity: 3},
	}, allocs)

	batches, err := l.Batches(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 0, batches[0].Remaining)
	assert.Equal(t, 7, batches[1].Remaining)
	assertStockConsistent(t, l, "p1")
}

func TestDeductFIFOOlderBatchFirstRegardlessOfInsertOrder(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	newer := receive(t, l, "p1", 10, day("2024-02-01"))
	older := receive(t, l, "p1", 4, day("2024-01-01"))

	allocs, err := l.DeductFIFO(ctx, "p1", 6, TxnInfo{TxnID: "t1"})
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, older.ID, allocs[0].BatchID)
	assert.Equal(t, 4, allocs[0].Quantity)
	assert.Equal(t, newer.ID, allocs[1].BatchID)
	assert.Equal(t, 2, allocs[1].Quantity)
}

func TestDeductFIFOSameTimestampUsesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	at := day("2024-03-01")
	first := receive(t, l, "p1", 3, at)
	receive(t, l, "p1", 3, at)

	allocs, err := l.DeductFIFO(ctx, "p1", 2, TxnInfo{TxnID: "t1"})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, first.ID, allocs[0].BatchID)
}

func TestDeductFIFOShortageMutatesNothing(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 5, day("2024-01-01"))
	before, err := l.AuditTrail(ctx, "p1")
	require.NoError(t, err)

	_, err = l.DeductFIFO(ctx, "p1", 6, TxnInfo{TxnID: "t1"})
	var se *apperr.StockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []apperr.Shortage{{ProductID: "p1", Requested: 6, Available: 5}}, se.Items)

	batches, _ := l.Batches(ctx, "p1")
	assert.Equal(t, 5, batches[0].Remaining)
	after, _ := l.AuditTrail(ctx, "p1")
	assert.Equal(t, len(before), len(after))
	assertStockConsistent(t, l, "p1")
}

func TestDeductFIFOUnknownProduct(t *testing.T) {
	l, _ := newTestLedger(t, "p1")
	_, err := l.DeductFIFO(context.Background(), "nope", 1, TxnInfo{})
	assert.True(t, apperr.IsNotFound(err))

	_, _, err = l.CheckAvailability(context.Background(), "nope", 1)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeductRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 5, day("2024-01-01"))
	receive(t, l, "p1", 10, day("2024-02-01"))
	receive(t, l, "p1", 2, day("2024-03-01"))

	// consume part of the oldest batch so restore has to land mid-stream
	_, err := l.DeductFIFO(ctx, "p1", 2, TxnInfo{TxnID: "earlier"})
	require.NoError(t, err)
	before, _ := l.Batches(ctx, "p1")

	allocs, err := l.DeductFIFO(ctx, "p1", 12, TxnInfo{TxnID: "t1"})
	require.NoError(t, err)
	require.NoError(t, l.RestoreToBatches(ctx, allocs, TxnInfo{TxnID: "t1", Source: SourceCancel}))

	after, _ := l.Batches(ctx, "p1")
	assert.Equal(t, before, after)
	assertStockConsistent(t, l, "p1")

	trail, _ := l.AuditTrail(ctx, "p1")
	var sum int
	for _, e := range trail {
		if e.TxnID == "t1" {
			sum += e.Delta
		}
	}
	assert.Zero(t, sum)
}

func TestRestoreBeyondOriginalIsRefused(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	b := receive(t, l, "p1", 5, day("2024-01-01"))
	allocs, err := l.DeductFIFO(ctx, "p1", 2, TxnInfo{TxnID: "t1"})
	require.NoError(t, err)

	require.NoError(t, l.RestoreToBatches(ctx, allocs, TxnInfo{TxnID: "t1"}))
	err = l.RestoreToBatches(ctx, allocs, TxnInfo{TxnID: "t1"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)

	batches, _ := l.Batches(ctx, "p1")
	assert.Equal(t, b.OriginalQty, batches[0].Remaining)
	assertStockConsistent(t, l, "p1")
}

func TestRestoreUnknownBatch(t *testing.T) {
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 5, day("2024-01-01"))
	err := l.RestoreToBatches(context.Background(),
		[]Allocation{{BatchID: "ghost", ProductID: "p1", Quantity: 1}}, TxnInfo{})
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeductFromBatchesUndoesRestore(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 5, day("2024-01-01"))
	late := receive(t, l, "p1", 10, day("2024-02-01"))

	allocs, err := l.DeductFIFO(ctx, "p1", 7, TxnInfo{TxnID: "t1"})
	require.NoError(t, err)
	held, _ := l.Batches(ctx, "p1")
	require.NoError(t, l.RestoreToBatches(ctx, allocs, TxnInfo{TxnID: "t1", Source: SourceCancel}))

	// a FIFO pick now would take the older batch first; the undo must not
	require.NoError(t, l.DeductFromBatches(ctx, allocs, TxnInfo{TxnID: "t1", Source: SourceRollback}))
	after, _ := l.Batches(ctx, "p1")
	assert.Equal(t, held, after)
	assertStockConsistent(t, l, "p1")

	trail, _ := l.AuditTrail(ctx, "p1")
	last := trail[len(trail)-1]
	assert.Equal(t, SourceRollback, last.Source)
	assert.Equal(t, late.ID, last.BatchID)
	assert.Equal(t, -2, last.Delta)
}

func TestDeductFromBatchesShortWritesNothing(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	first := receive(t, l, "p1", 5, day("2024-01-01"))
	second := receive(t, l, "p1", 10, day("2024-02-01"))

	err := l.DeductFromBatches(ctx, []Allocation{
		{BatchID: second.ID, ProductID: "p1", Quantity: 4},
		{BatchID: first.ID, ProductID: "p1", Quantity: 6},
	}, TxnInfo{TxnID: "t1"})
	var se *apperr.StockError
	require.ErrorAs(t, err, &se)

	batches, _ := l.Batches(ctx, "p1")
	assert.Equal(t, 5, batches[0].Remaining)
	assert.Equal(t, 10, batches[1].Remaining)
	assertStockConsistent(t, l, "p1")

	err = l.DeductFromBatches(ctx, []Allocation{{BatchID: "ghost", ProductID: "p1", Quantity: 1}}, TxnInfo{})
	assert.True(t, apperr.IsNotFound(err))
}

func TestCheckAvailability(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 5, day("2024-01-01"))
	receive(t, l, "p1", 10, day("2024-02-01"))

	ok, total, err := l.CheckAvailability(ctx, "p1", 15)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 15, total)

	ok, _, err = l.CheckAvailability(ctx, "p1", 16)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentDeductionsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t, "p1")
	receive(t, l, "p1", 30, day("2024-01-01"))
	receive(t, l, "p1", 20, day("2024-02-01"))

	var won, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			_, err := l.DeductFIFO(ctx, "p1", 2, TxnInfo{TxnID: "race"})
			switch {
			case err == nil:
				won.Add(1)
			case apperr.IsStock(err):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(25), won.Load())
	assert.Equal(t, int32(15), lost.Load())
	_, total, err := l.CheckAvailability(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assertStockConsistent(t, l, "p1")
}

func TestUpdateFailureDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AddProduct("p1")
	l := NewLedger(LedgerDeps{Store: store})
	receive(t, l, "p1", 5, day("2024-01-01"))

	boom := errors.New("boom")
	err := store.Update(ctx, "p1", func(tx Tx) error {
		bs, _ := tx.Batches(ctx)
		require.NoError(t, tx.SetRemaining(ctx, bs[0].ID, 0))
		require.NoError(t, tx.AdjustStock(ctx, -5))
		return boom
	})
	require.ErrorIs(t, err, boom)

	stock, _ := store.CachedStock(ctx, "p1")
	assert.Equal(t, 5, stock)
	batches, _ := store.Batches(ctx, "p1")
	assert.Equal(t, 5, batches[0].Remaining)
}
