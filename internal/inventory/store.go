package inventory

import "context"

// Store persists batches, their audit trail and the cached per-product stock.
type Store interface {
	// Update runs fn with exclusive access to productID's batch set. Writes
	// made through tx become visible only if fn returns nil.
	Update(ctx context.Context, productID string, fn func(tx Tx) error) error

	// Batches returns the product's batches in FIFO order.
	Batches(ctx context.Context, productID string) ([]StockBatch, error)
	AuditTrail(ctx context.Context, productID string) ([]AuditEntry, error)
	CachedStock(ctx context.Context, productID string) (int, error)
}

// Tx is the write view handed to Store.Update.
type Tx interface {
	Batches(ctx context.Context) ([]StockBatch, error)
	SetRemaining(ctx context.Context, batchID string, remaining int) error
	InsertBatch(ctx context.Context, b StockBatch) (StockBatch, error)
	AppendAudit(ctx context.Context, e AuditEntry) error
	AdjustStock(ctx context.Context, delta int) error
}
