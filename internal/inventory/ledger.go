// Package inventory keeps per-product stock as a set of received batches and
// consumes them oldest-first.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type LedgerDeps struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Ledger is the only writer of batch quantities.
type Ledger struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

func NewLedger(d LedgerDeps) *Ledger {
	l := &Ledger{store: d.Store, log: d.Logger, now: d.Now, newID: d.NewID}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.now == nil {
		l.now = func() time.Time { return time.Now().UTC() }
	}
	if l.newID == nil {
		l.newID = func() string { return ulid.Make().String() }
	}
	return l
}

// CheckAvailability sums remaining quantity across the product's batches.
// It takes no lock; DeductFIFO re-verifies under the product's lock.
func (l *Ledger) CheckAvailability(ctx context.Context, productID string, qty int) (bool, int, error) {
	batches, err := l.store.Batches(ctx, productID)
	if err != nil {
		return false, 0, err
	}
	total := sumRemaining(batches)
	return total >= qty, total, nil
}

// DeductFIFO consumes qty units of productID starting from the oldest batch.
// On shortage nothing is written and a *apperr.StockError is returned.
func (l *Ledger) DeductFIFO(ctx context.Context, productID string, qty int, info TxnInfo) ([]Allocation, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity", "must be positive, got %d", qty)
	}

	var allocs []Allocation
	err := l.store.Update(ctx, productID, func(tx Tx) error {
		batches, err := tx.Batches(ctx)
		if err != nil {
			return err
		}
		SortFIFO(batches)

		if total := sumRemaining(batches); total < qty {
			return apperr.InsufficientStock(productID, qty, total)
		}

		remaining := make(map[string]int, len(batches))
		for _, b := range batches {
			remaining[b.ID] = b.Remaining
		}

		allocs = planFIFO(batches, qty)
		now := l.now()
		for _, a := range allocs {
			left := remaining[a.BatchID] - a.Quantity
			if err := tx.SetRemaining(ctx, a.BatchID, left); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, l.audit(a, info, -a.Quantity, left, now)); err != nil {
				return err
			}
		}
		return tx.AdjustStock(ctx, -qty)
	})
	if err != nil {
		return nil, err
	}

	l.log.Debug("stock deducted",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Int("batches", len(allocs)),
		zap.String("txn_id", info.TxnID),
	)
	return allocs, nil
}

// RestoreToBatches puts each allocation back into the batch it was taken
// from. Each product is restored atomically; a failure leaves earlier
// products restored, so callers that need all-or-nothing restore one product
// per call.
func (l *Ledger) RestoreToBatches(ctx context.Context, allocs []Allocation, info TxnInfo) error {
	order, byProduct, err := groupByProduct(allocs)
	if err != nil {
		return err
	}
	for _, pid := range order {
		if err := l.restoreProduct(ctx, pid, byProduct[pid], info); err != nil {
			return fmt.Errorf("restore %s: %w", pid, err)
		}
	}
	return nil
}

// DeductFromBatches takes each allocation out of the exact batch it names,
// never picking FIFO. It undoes a RestoreToBatches.
func (l *Ledger) DeductFromBatches(ctx context.Context, allocs []Allocation, info TxnInfo) error {
	order, byProduct, err := groupByProduct(allocs)
	if err != nil {
		return err
	}
	for _, pid := range order {
		if err := l.deductProduct(ctx, pid, byProduct[pid], info); err != nil {
			return fmt.Errorf("deduct %s: %w", pid, err)
		}
	}
	return nil
}

func groupByProduct(allocs []Allocation) ([]string, map[string][]Allocation, error) {
	var order []string
	byProduct := make(map[string][]Allocation)
	for _, a := range allocs {
		if a.ProductID == "" || a.BatchID == "" {
			return nil, nil, apperr.Validation("allocation", "batch and product are required")
		}
		if a.Quantity <= 0 {
			return nil, nil, apperr.Validation("allocation", "quantity must be positive for batch %s", a.BatchID)
		}
		if _, seen := byProduct[a.ProductID]; !seen {
			order = append(order, a.ProductID)
		}
		byProduct[a.ProductID] = append(byProduct[a.ProductID], a)
	}
	return order, byProduct, nil
}

func (l *Ledger) deductProduct(ctx context.Context, productID string, allocs []Allocation, info TxnInfo) error {
	return l.store.Update(ctx, productID, func(tx Tx) error {
		batches, err := tx.Batches(ctx)
		if err != nil {
			return err
		}
		current := make(map[string]StockBatch, len(batches))
		for _, b := range batches {
			current[b.ID] = b
		}

		total := 0
		now := l.now()
		for _, a := range allocs {
			b, ok := current[a.BatchID]
			if !ok {
				return apperr.NotFound("stock batch", a.BatchID)
			}
			// batch sudah dipakai order lain
			if b.Remaining < a.Quantity {
				return apperr.InsufficientStock(productID, a.Quantity, b.Remaining)
			}
			b.Remaining -= a.Quantity
			current[b.ID] = b

			if err := tx.SetRemaining(ctx, b.ID, b.Remaining); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, l.audit(a, info, -a.Quantity, b.Remaining, now)); err != nil {
				return err
			}
			total += a.Quantity
		}
		return tx.AdjustStock(ctx, -total)
	})
}

func (l *Ledger) restoreProduct(ctx context.Context, productID string, allocs []Allocation, info TxnInfo) error {
	return l.store.Update(ctx, productID, func(tx Tx) error {
		batches, err := tx.Batches(ctx)
		if err != nil {
			return err
		}
		current := make(map[string]StockBatch, len(batches))
		for _, b := range batches {
			current[b.ID] = b
		}

		total := 0
		now := l.now()
		for _, a := range allocs {
			b, ok := current[a.BatchID]
			if !ok {
				return apperr.NotFound("stock batch", a.BatchID)
			}
			b.Remaining += a.Quantity
			if b.Remaining > b.OriginalQty {
				return apperr.Validation("allocation",
					"restoring %d to batch %s exceeds its original quantity %d", a.Quantity, b.ID, b.OriginalQty)
			}
			current[b.ID] = b

			if err := tx.SetRemaining(ctx, b.ID, b.Remaining); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, l.audit(a, info, a.Quantity, b.Remaining, now)); err != nil {
				return err
			}
			total += a.Quantity
		}

		l.log.Debug("stock restored",
			zap.String("product_id", productID),
			zap.Int("qty", total),
			zap.String("txn_id", info.TxnID),
		)
		return tx.AdjustStock(ctx, total)
	})
}

// ReceiveBatch records a new shipment. The product must already exist.
func (l *Ledger) ReceiveBatch(ctx context.Context, productID string, qty int, receivedAt time.Time, actor string) (StockBatch, error) {
	if qty <= 0 {
		return StockBatch{}, apperr.Validation("quantity", "must be positive, got %d", qty)
	}
	if receivedAt.IsZero() {
		receivedAt = l.now()
	}

	var out StockBatch
	err := l.store.Update(ctx, productID, func(tx Tx) error {
		b, err := tx.InsertBatch(ctx, StockBatch{
			ID:          l.newID(),
			ProductID:   productID,
			ReceivedAt:  receivedAt.UTC(),
			OriginalQty: qty,
			Remaining:   qty,
		})
		if err != nil {
			return err
		}
		out = b
		a := Allocation{BatchID: b.ID, ProductID: productID, Quantity: qty}
		info := TxnInfo{TxnID: b.ID, Actor: actor, Source: SourceReceiving}
		if err := tx.AppendAudit(ctx, l.audit(a, info, qty, qty, l.now())); err != nil {
			return err
		}
		return tx.AdjustStock(ctx, qty)
	})
	if err != nil {
		return StockBatch{}, err
	}
	return out, nil
}

// Batches lists productID's batches oldest first.
func (l *Ledger) Batches(ctx context.Context, productID string) ([]StockBatch, error) {
	return l.store.Batches(ctx, productID)
}

func (l *Ledger) AuditTrail(ctx context.Context, productID string) ([]AuditEntry, error) {
	return l.store.AuditTrail(ctx, productID)
}

func (l *Ledger) CachedStock(ctx context.Context, productID string) (int, error) {
	return l.store.CachedStock(ctx, productID)
}

func (l *Ledger) audit(a Allocation, info TxnInfo, delta, after int, at time.Time) AuditEntry {
	return AuditEntry{
		ID:             l.newID(),
		BatchID:        a.BatchID,
		ProductID:      a.ProductID,
		TxnID:          info.TxnID,
		Actor:          info.Actor,
		Source:         info.Source,
		Reason:         info.Reason,
		Delta:          delta,
		RemainingAfter: after,
		At:             at,
	}
}
