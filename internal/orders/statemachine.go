package orders

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/fees"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
)

type StateMachineDeps struct {
	Stock  StockLedger
	Points PointsLedger
	Logger *zap.Logger
	Now    func() time.Time
}

// StateMachine applies lifecycle transitions and their ledger side effects.
// It never persists; callers store the returned order.
type StateMachine struct {
	stock  StockLedger
	points PointsLedger
	log    *zap.Logger
	now    func() time.Time
}

func NewStateMachine(d StateMachineDeps) *StateMachine {
	m := &StateMachine{stock: d.Stock, points: d.Points, log: d.Logger, now: d.Now}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	return m
}

// Transition moves o to target and returns the updated copy. A failed side
// effect leaves o unchanged. Cancellation is routed to Cancel.
func (m *StateMachine) Transition(ctx context.Context, o Order, target Status, actor Actor, notes string) (Order, error) {
	next, _, err := m.transition(ctx, o, target, actor, notes)
	return next, err
}

// transition also returns the steps that undo its ledger effects, for a
// caller whose write of the returned order fails. Awarding points needs no
// undo step: Award is idempotent per order.
func (m *StateMachine) transition(ctx context.Context, o Order, target Status, actor Actor, notes string) (Order, *saga, error) {
	if target == StatusCancelled {
		return m.cancel(ctx, o, notes, actor)
	}
	if !actor.operator() {
		return Order{}, nil, &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "move order to " + string(target)}
	}
	if !CanTransition(o.Status, target) {
		return Order{}, nil, &apperr.StateError{From: string(o.Status), To: string(target)}
	}

	next := o.Clone()
	now := m.now()

	switch target {
	case StatusConfirmed:
		if err := m.recheckStock(ctx, o); err != nil {
			return Order{}, nil, err
		}
	case StatusProcessing:
		next.PreparedBy = actor.ID
	case StatusOnTheWay:
		next.ReadyAt = &now
	case StatusCompleted:
		next.DeliveredAt = &now
		if next.PaymentMethod == fees.MethodCOD && next.PaymentStatus != PaymentPaid {
			next.PaymentStatus = PaymentPaid
			next.PaymentConfirmedBy = actor.ID
			next.PaymentConfirmedAt = &now
		}
		if !next.PointsAwarded {
			if next.PointsEarned > 0 {
				if _, err := m.points.Award(ctx, o.CustomerID, o.PointsEarned, o.ID, o.SubtotalAfterDiscount); err != nil {
					return Order{}, nil, err
				}
			}
			next.PointsAwarded = true
		}
	}

	next.Status = target
	next.StatusHistory = append(next.StatusHistory, StatusChange{Status: target, At: now, Actor: actor.ID, Notes: notes})
	next.UpdatedAt = now

	m.log.Info("order transitioned",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(target)),
		zap.String("actor", actor.ID),
	)
	return next, nil, nil
}

// recheckStock verifies every line is still available before confirmation.
func (m *StateMachine) recheckStock(ctx context.Context, o Order) error {
	var short []apperr.Shortage
	for _, it := range o.Items {
		ok, total, err := m.stock.CheckAvailability(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			short = append(short, apperr.Shortage{ProductID: it.ProductID, Requested: it.Quantity, Available: total})
		}
	}
	if len(short) > 0 {
		return &apperr.StockError{Items: short}
	}
	return nil
}

// Cancel restores the order's recorded batch allocations and refunds any
// redeemed points. Only pending and confirmed orders can be cancelled; the
// owning customer may cancel their own order.
func (m *StateMachine) Cancel(ctx context.Context, o Order, reason string, actor Actor) (Order, error) {
	next, _, err := m.cancel(ctx, o, reason, actor)
	return next, err
}

func (m *StateMachine) cancel(ctx context.Context, o Order, reason string, actor Actor) (Order, *saga, error) {
	owner := actor.Role == RoleCustomer && actor.ID == o.CustomerID
	if !actor.operator() && !owner {
		return Order{}, nil, &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "cancel order " + o.ID}
	}
	if o.Status == StatusCancelled || o.Cancellation != nil {
		return Order{}, nil, &apperr.StateError{From: string(o.Status), To: string(StatusCancelled), Msg: "order already cancelled"}
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return Order{}, nil, &apperr.StateError{From: string(o.Status), To: string(StatusCancelled),
			Msg: "only pending or confirmed orders can be cancelled"}
	}

	next := o.Clone()
	now := m.now()
	info := inventory.TxnInfo{TxnID: o.ID, Actor: actor.ID, Source: inventory.SourceCancel, Reason: reason}
	undo := inventory.TxnInfo{TxnID: o.ID, Actor: actor.ID, Source: inventory.SourceRollback, Reason: "cancellation failed"}
	tx := newSaga("cancel order "+o.ID, m.log)

	if o.PointsRedeemed > 0 {
		if _, err := m.points.Refund(ctx, o.CustomerID, o.PointsRedeemed, o.ID); err != nil {
			return Order{}, nil, err
		}
		tx.add("re-redeem points", func(ctx context.Context) error {
			_, err := m.points.Redeem(ctx, o.CustomerID, o.PointsRedeemed, o.ID)
			return err
		})
	}

	// satu produk per restore, supaya tiap langkah bisa di-undo persis
	products, allocs := o.AllocationsByProduct()
	for _, pid := range products {
		held := allocs[pid]
		if err := m.stock.RestoreToBatches(ctx, held, info); err != nil {
			return Order{}, nil, tx.abort(ctx, err)
		}
		tx.add("re-deduct "+pid, func(ctx context.Context) error {
			return m.stock.DeductFromBatches(ctx, held, undo)
		})
	}

	if next.PaymentStatus == PaymentPaid {
		next.PaymentStatus = PaymentRefunded
	}
	next.Cancellation = &Cancellation{
		Reason:         reason,
		CancelledBy:    actor.ID,
		CancelledAt:    now,
		StockRestored:  true,
		PointsRefunded: o.PointsRedeemed > 0,
	}
	next.Status = StatusCancelled
	next.StatusHistory = append(next.StatusHistory, StatusChange{Status: StatusCancelled, At: now, Actor: actor.ID, Notes: reason})
	next.UpdatedAt = now

	m.log.Info("order cancelled",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.Int("products", len(products)),
		zap.Int("points_refunded", o.PointsRedeemed),
		zap.String("actor", actor.ID),
	)
	return next, tx, nil
}
