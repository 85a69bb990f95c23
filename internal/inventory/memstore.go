package inventory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/lockx"
)

type productState struct {
	batches []StockBatch
	stock   int
	audit   []AuditEntry
}

// MemoryStore keeps everything in process. Writers serialize per product on
// a keyed mutex and stage their changes until fn succeeds.
type MemoryStore struct {
	locks *lockx.KeyedMutex
	seq   atomic.Int64

	mu       sync.RWMutex
	products map[string]*productState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:    lockx.NewKeyedMutex(),
		products: make(map[string]*productState),
	}
}

// AddProduct registers a product with zero stock. Registering twice is a no-op.
func (s *MemoryStore) AddProduct(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		s.products[productID] = &productState{}
	}
}

func (s *MemoryStore) Update(ctx context.Context, productID string, fn func(tx Tx) error) error {
	unlock, err := s.locks.Lock(ctx, "product:"+productID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	p, ok := s.products[productID]
	var staged []StockBatch
	if ok {
		staged = slices.Clone(p.batches)
	}
	s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("product", productID)
	}

	tx := &memTx{store: s, productID: productID, batches: staged}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	p.batches = tx.batches
	p.stock += tx.stockDelta
	p.audit = append(p.audit, tx.audit...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Batches(_ context.Context, productID string) ([]StockBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, apperr.NotFound("product", productID)
	}
	out := slices.Clone(p.batches)
	SortFIFO(out)
	return out, nil
}

func (s *MemoryStore) AuditTrail(_ context.Context, productID string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return nil, apperr.NotFound("product", productID)
	}
	return slices.Clone(p.audit), nil
}

func (s *MemoryStore) CachedStock(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, apperr.NotFound("product", productID)
	}
	return p.stock, nil
}

type memTx struct {
	store      *MemoryStore
	productID  string
	batches    []StockBatch
	stockDelta int
	audit      []AuditEntry
}

func (t *memTx) Batches(context.Context) ([]StockBatch, error) {
	out := slices.Clone(t.batches)
	SortFIFO(out)
	return out, nil
}

func (t *memTx) SetRemaining(_ context.Context, batchID string, remaining int) error {
	i := slices.IndexFunc(t.batches, func(b StockBatch) bool { return b.ID == batchID })
	if i < 0 {
		return apperr.NotFound("stock batch", batchID)
	}
	if remaining < 0 || remaining > t.batches[i].OriginalQty {
		return apperr.Validation("remaining", "%d out of range for batch %s", remaining, batchID)
	}
	t.batches[i].Remaining = remaining
	return nil
}

func (t *memTx) InsertBatch(_ context.Context, b StockBatch) (StockBatch, error) {
	b.ProductID = t.productID
	b.Seq = t.store.seq.Add(1)
	t.batches = append(t.batches, b)
	return b, nil
}

func (t *memTx) AppendAudit(_ context.Context, e AuditEntry) error {
	t.audit = append(t.audit, e)
	return nil
}

func (t *memTx) AdjustStock(_ context.Context, delta int) error {
	t.stockDelta += delta
	return nil
}
