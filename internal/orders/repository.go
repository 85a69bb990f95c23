package orders

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

// ErrStatusMismatch is returned by Update when the stored status no longer
// matches the caller's expectation.
var ErrStatusMismatch = errors.New("order status mismatch")

const orderIDFormat = "ONLINE-%06d"

type ListFilter struct {
	CustomerID    string
	Status        Status
	PaymentStatus PaymentStatus
	From          time.Time
	To            time.Time
	Limit         int
}

func (f ListFilter) match(o Order) bool {
	switch {
	case f.CustomerID != "" && o.CustomerID != f.CustomerID:
		return false
	case f.Status != "" && o.Status != f.Status:
		return false
	case f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus:
		return false
	case !f.From.IsZero() && o.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && o.CreatedAt.After(f.To):
		return false
	}
	return true
}

type Repository interface {
	// NextID reserves the next human-readable order id.
	NextID(ctx context.Context) (string, error)
	Insert(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// Update replaces the stored order if its status is still expected.
	Update(ctx context.Context, o Order, expected Status) error
	// List returns matching orders newest first.
	List(ctx context.Context, f ListFilter) ([]Order, error)
}

type MemoryRepo struct {
	seq atomic.Int64

	mu     sync.RWMutex
	orders map[string]Order
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{orders: make(map[string]Order)}
}

func (r *MemoryRepo) NextID(context.Context) (string, error) {
	return fmt.Sprintf(orderIDFormat, r.seq.Add(1)), nil
}

func (r *MemoryRepo) Insert(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, apperr.NotFound("order", id)
	}
	return o.Clone(), nil
}

func (r *MemoryRepo) Update(_ context.Context, o Order, expected Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return apperr.NotFound("order", o.ID)
	}
	if cur.Status != expected {
		return ErrStatusMismatch
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepo) List(_ context.Context, f ListFilter) ([]Order, error) {
	r.mu.RLock()
	var out []Order
	for _, o := range r.orders {
		if f.match(o) {
			out = append(out, o.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
