package loyalty

import "context"

// Store persists customer balances and their ledgers.
type Store interface {
	// Update runs fn with exclusive access to customerID's balance. Entries
	// appended through tx are kept only if fn returns nil.
	Update(ctx context.Context, customerID string, fn func(tx Tx) error) error

	Balance(ctx context.Context, customerID string) (int, error)
	History(ctx context.Context, customerID string) ([]Transaction, error)
}

type Tx interface {
	Balance(ctx context.Context) (int, error)
	// Append writes t and sets the cached balance to t.BalanceAfter.
	Append(ctx context.Context, t Transaction) error
	FindByOrder(ctx context.Context, orderID string, typ TxnType) (Transaction, bool, error)
}
