// Package loyalty keeps customer point balances as an append-only ledger.
// A customer's cached balance always equals the sum of their entries.
package loyalty

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type LedgerDeps struct {
	Store  Store
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

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

func (l *Ledger) GetBalance(ctx context.Context, customerID string) (int, error) {
	return l.store.Balance(ctx, customerID)
}

func (l *Ledger) History(ctx context.Context, customerID string) ([]Transaction, error) {
	return l.store.History(ctx, customerID)
}

// ValidateRedemption checks points against the minimum, the balance and the
// per-order cap derived from subtotal. Zero points is always valid.
func (l *Ledger) ValidateRedemption(ctx context.Context, customerID string, points int, subtotal decimal.Decimal) error {
	if points == 0 {
		return nil
	}
	if points < 0 {
		return apperr.Points(apperr.PointsInvalid, "points to redeem cannot be negative")
	}
	if points < MinRedemption {
		return apperr.Points(apperr.PointsBelowMinimum, "minimum %d points required", MinRedemption)
	}
	balance, err := l.store.Balance(ctx, customerID)
	if err != nil {
		return err
	}
	if points > balance {
		return apperr.Points(apperr.PointsInsufficient, "insufficient points: balance %d, requested %d", balance, points)
	}
	if limit := CapPoints(subtotal); points > limit {
		return apperr.Points(apperr.PointsAboveCap,
			"maximum %d points (₱%s) can be redeemed on this order", limit, Discount(limit).StringFixed(2))
	}
	return nil
}

// Redeem deducts points for orderID. The balance is re-checked under the
// customer's lock and never goes negative.
func (l *Ledger) Redeem(ctx context.Context, customerID string, points int, orderID string) (Transaction, error) {
	if points <= 0 {
		return Transaction{}, apperr.Points(apperr.PointsInvalid, "points to redeem must be positive")
	}
	return l.append(ctx, customerID, func(_ Tx, balance int) (Transaction, bool, error) {
		if points > balance {
			return Transaction{}, false, apperr.Points(apperr.PointsInsufficient,
				"insufficient points: balance %d, requested %d", balance, points)
		}
		return Transaction{Type: TypeRedeemed, Points: -points, OrderID: orderID}, true, nil
	})
}

// Award credits points earned on orderID. A second award for the same order
// returns the existing entry and writes nothing.
func (l *Ledger) Award(ctx context.Context, customerID string, points int, orderID string, base decimal.Decimal) (Transaction, error) {
	if points < 0 {
		return Transaction{}, apperr.Points(apperr.PointsInvalid, "points to award cannot be negative")
	}
	return l.append(ctx, customerID, func(tx Tx, _ int) (Transaction, bool, error) {
		if orderID != "" {
			prev, ok, err := tx.FindByOrder(ctx, orderID, TypeEarned)
			if err != nil {
				return Transaction{}, false, err
			}
			if ok {
				return prev, false, nil
			}
		}
		if points == 0 {
			return Transaction{}, false, nil
		}
		expires := l.now().Add(ExpiryPeriod)
		b := base
		return Transaction{Type: TypeEarned, Points: points, OrderID: orderID, BaseAmount: &b, ExpiresAt: &expires}, true, nil
	})
}

// Refund returns previously redeemed points.
func (l *Ledger) Refund(ctx context.Context, customerID string, points int, orderID string) (Transaction, error) {
	if points <= 0 {
		return Transaction{}, apperr.Points(apperr.PointsInvalid, "points to refund must be positive")
	}
	return l.append(ctx, customerID, func(_ Tx, _ int) (Transaction, bool, error) {
		return Transaction{Type: TypeRefunded, Points: points, OrderID: orderID}, true, nil
	})
}

// Adjust applies a manual signed correction.
func (l *Ledger) Adjust(ctx context.Context, customerID string, delta int, note, actor string) (Transaction, error) {
	if delta == 0 {
		return Transaction{}, apperr.Points(apperr.PointsInvalid, "adjustment cannot be zero")
	}
	return l.append(ctx, customerID, func(_ Tx, balance int) (Transaction, bool, error) {
		if balance+delta < 0 {
			return Transaction{}, false, apperr.Points(apperr.PointsInsufficient,
				"adjustment of %d would make balance %d negative", delta, balance)
		}
		return Transaction{Type: TypeAdjusted, Points: delta, Note: note, Actor: actor}, true, nil
	})
}

// append runs build under the customer's lock. build returns the entry to
// write, or write=false to return the entry as-is without touching the ledger.
func (l *Ledger) append(ctx context.Context, customerID string,
	build func(tx Tx, balance int) (t Transaction, write bool, err error)) (Transaction, error) {
	var (
		out   Transaction
		wrote bool
	)
	err := l.store.Update(ctx, customerID, func(tx Tx) error {
		balance, err := tx.Balance(ctx)
		if err != nil {
			return err
		}
		t, write, err := build(tx, balance)
		if err != nil {
			return err
		}
		if !write {
			out = t
			return nil
		}
		t.ID = l.newID()
		t.CustomerID = customerID
		t.BalanceBefore = balance
		t.BalanceAfter = balance + t.Points
		t.Status = StatusActive
		t.CreatedAt = l.now()
		if err := tx.Append(ctx, t); err != nil {
			return err
		}
		out, wrote = t, true
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	if wrote {
		l.log.Debug("points ledger entry",
			zap.String("customer_id", customerID),
			zap.String("type", string(out.Type)),
			zap.Int("points", out.Points),
			zap.Int("balance_after", out.BalanceAfter),
			zap.String("order_id", out.OrderID),
		)
	}
	return out, nil
}
