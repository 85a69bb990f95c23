package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/loyalty"
)

// StockLedger is the part of inventory.Ledger the order flow needs.
type StockLedger interface {
	CheckAvailability(ctx context.Context, productID string, qty int) (bool, int, error)
	DeductFIFO(ctx context.Context, productID string, qty int, info inventory.TxnInfo) ([]inventory.Allocation, error)
	RestoreToBatches(ctx context.Context, allocs []inventory.Allocation, info inventory.TxnInfo) error
	DeductFromBatches(ctx context.Context, allocs []inventory.Allocation, info inventory.TxnInfo) error
}

// PointsLedger is the part of loyalty.Ledger the order flow needs.
type PointsLedger interface {
	GetBalance(ctx context.Context, customerID string) (int, error)
	ValidateRedemption(ctx context.Context, customerID string, points int, subtotal decimal.Decimal) error
	Redeem(ctx context.Context, customerID string, points int, orderID string) (loyalty.Transaction, error)
	Award(ctx context.Context, customerID string, points int, orderID string, base decimal.Decimal) (loyalty.Transaction, error)
	Refund(ctx context.Context, customerID string, points int, orderID string) (loyalty.Transaction, error)
}

var (
	_ StockLedger  = (*inventory.Ledger)(nil)
	_ PointsLedger = (*loyalty.Ledger)(nil)
)

// Notifier delivers best-effort order notifications. Errors are logged and
// never fail the calling operation.
type Notifier interface {
	Notify(ctx context.Context, event string, o Order) error
}

// Promotions prices a promotion code against an order subtotal.
type Promotions interface {
	Discount(ctx context.Context, code, customerID string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// IdempotencyStore maps a client-supplied key to the order it created.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (orderID string, ok bool, err error)
	Remember(ctx context.Context, key, orderID string, ttl time.Duration) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, Order) error { return nil }
