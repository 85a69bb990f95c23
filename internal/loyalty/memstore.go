package loyalty

import (
	"context"
	"slices"
	"sync"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/lockx"
)

type account struct {
	balance int
	entries []Transaction
}

type MemoryStore struct {
	locks *lockx.KeyedMutex

	mu       sync.RWMutex
	accounts map[string]*account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: lockx.NewKeyedMutex(), accounts: make(map[string]*account)}
}

// AddCustomer opens an empty account. Seed balances with Ledger.Adjust so
// the ledger sum stays equal to the balance.
func (s *MemoryStore) AddCustomer(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[customerID]; !ok {
		s.accounts[customerID] = &account{}
	}
}

func (s *MemoryStore) Update(ctx context.Context, customerID string, fn func(tx Tx) error) error {
	unlock, err := s.locks.Lock(ctx, "customer:"+customerID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	a, ok := s.accounts[customerID]
	var tx *memTx
	if ok {
		tx = &memTx{balance: a.balance, committed: slices.Clone(a.entries)}
	}
	s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("customer", customerID)
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	a.balance = tx.balance
	a.entries = append(a.entries, tx.staged...)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[customerID]
	if !ok {
		return 0, apperr.NotFound("customer", customerID)
	}
	return a.balance, nil
}

func (s *MemoryStore) History(_ context.Context, customerID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[customerID]
	if !ok {
		return nil, apperr.NotFound("customer", customerID)
	}
	return slices.Clone(a.entries), nil
}

type memTx struct {
	balance   int
	committed []Transaction
	staged    []Transaction
}

func (t *memTx) Balance(context.Context) (int, error) { return t.balance, nil }

func (t *memTx) Append(_ context.Context, e Transaction) error {
	t.staged = append(t.staged, e)
	t.balance = e.BalanceAfter
	return nil
}

func (t *memTx) FindByOrder(_ context.Context, orderID string, typ TxnType) (Transaction, bool, error) {
	for _, e := range slices.Concat(t.committed, t.staged) {
		if e.OrderID == orderID && e.Type == typ {
			return e, true, nil
		}
	}
	return Transaction{}, false, nil
}
