// Package orders coordinates an order across the stock and points ledgers.
// Service is the entry point; StateMachine holds the lifecycle rules.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/catalog"
	"github.com/ariefcatur/go-order-ledger/internal/fees"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/lockx"
	"github.com/ariefcatur/go-order-ledger/internal/loyalty"
)

type ServiceDeps struct {
	Repo    Repository
	Catalog catalog.Catalog
	Stock   StockLedger
	Points  PointsLedger

	// optional
	Locker         lockx.Locker
	Notifier       Notifier
	Promotions     Promotions
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	Observer       Observer
	Logger         *zap.Logger
	Tracer         trace.Tracer
	Now            func() time.Time
}

type Service struct {
	repo     Repository
	catalog  catalog.Catalog
	stock    StockLedger
	points   PointsLedger
	sm       *StateMachine
	locker   lockx.Locker
	notifier Notifier
	promos   Promotions
	idem     IdempotencyStore
	idemTTL  time.Duration
	observer Observer
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	validate *validatorv10.Validate
}

func NewService(d ServiceDeps) *Service {
	s := &Service{
		repo:     d.Repo,
		catalog:  d.Catalog,
		stock:    d.Stock,
		points:   d.Points,
		locker:   d.Locker,
		notifier: d.Notifier,
		promos:   d.Promotions,
		idem:     d.Idempotency,
		idemTTL:  d.IdempotencyTTL,
		observer: d.Observer,
		log:      d.Logger,
		tracer:   d.Tracer,
		now:      d.Now,
		validate: newValidator(),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.locker == nil {
		s.locker = lockx.NewKeyedMutex()
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/ariefcatur/go-order-ledger/internal/orders")
	}
	if s.idemTTL <= 0 {
		s.idemTTL = 24 * time.Hour
	}
	s.sm = NewStateMachine(StateMachineDeps{Stock: s.stock, Points: s.points, Logger: s.log, Now: s.now})
	return s
}

// StateMachine exposes the lifecycle rules used by the service.
func (s *Service) StateMachine() *StateMachine { return s.sm }

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateOrder validates, prices and places an order. Either every ledger
// effect is committed and the order is stored, or the effects already
// applied are compensated and the error is returned.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (o Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.CreateOrder",
		attribute.String("customer.id", in.CustomerID),
		attribute.String("payment.method", string(in.PaymentMethod)),
		attribute.Int("items", len(in.Items)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(in); err != nil {
		return Order{}, validationError(err)
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		unlock, err := s.locker.Lock(ctx, "create:"+in.IdempotencyKey)
		if err != nil {
			return Order{}, err
		}
		defer unlock()

		id, ok, err := s.idem.Lookup(ctx, in.IdempotencyKey)
		if err != nil {
			return Order{}, fmt.Errorf("idempotency lookup: %w", err)
		}
		if ok {
			s.log.Info("create order replayed", zap.String("order_id", id), zap.String("key", in.IdempotencyKey))
			return s.repo.Get(ctx, id)
		}
	}

	o, err = s.placeOrder(ctx, in)
	if err != nil {
		s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseFailed, Err: err})
		return Order{}, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.total", o.Total.String()))

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, in.IdempotencyKey, o.ID, s.idemTTL); err != nil {
			s.log.Warn("idempotency remember failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	s.notify(ctx, EventOrderCreated, o)
	return o, nil
}

func (s *Service) placeOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	if _, err := s.points.GetBalance(ctx, in.CustomerID); err != nil {
		return Order{}, err
	}

	items := mergeItems(in.Items)
	products, err := s.checkStock(ctx, items)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		CustomerID:      in.CustomerID,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
		Items:           make([]OrderItem, len(items)),
		Subtotal:        decimal.Zero,
	}
	for i, it := range items {
		p := products[i]
		line := p.Price.Mul(decimal.NewFromInt(int64(it.Qty)))
		o.Items[i] = OrderItem{
			ProductID:    p.ID,
			Name:         p.Name,
			SKU:          p.SKU,
			Taxable:      p.Taxable,
			Quantity:     it.Qty,
			UnitPrice:    p.Price,
			LineSubtotal: line,
		}
		o.Subtotal = o.Subtotal.Add(line)
	}

	o.ID, err = s.repo.NextID(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("allocate order id: %w", err)
	}
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseValidated, Detail: "subtotal " + o.Subtotal.StringFixed(2)})

	promo, err := s.promotion(ctx, in, o.Subtotal)
	if err != nil {
		return o, err
	}
	o.Discounts = Discounts{PromotionCode: in.PromotionCode, Promotion: promo, Points: decimal.Zero}
	afterPromo := o.Subtotal.Sub(promo)

	tx := newSaga("create order "+o.ID, s.log)

	if in.PointsToRedeem > 0 {
		if err := s.points.ValidateRedemption(ctx, in.CustomerID, in.PointsToRedeem, afterPromo); err != nil {
			return o, err
		}
		if _, err := s.points.Redeem(ctx, in.CustomerID, in.PointsToRedeem, o.ID); err != nil {
			return o, err
		}
		tx.add("refund points", func(ctx context.Context) error {
			_, err := s.points.Refund(ctx, in.CustomerID, in.PointsToRedeem, o.ID)
			return err
		})
		o.PointsRedeemed = in.PointsToRedeem
		o.Discounts.Points = loyalty.Discount(in.PointsToRedeem)
		s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhasePointsRedeemed, Detail: fmt.Sprintf("%d points", in.PointsToRedeem)})
	}

	o.Discounts.Total = o.Discounts.Promotion.Add(o.Discounts.Points)
	o.SubtotalAfterDiscount = decimal.Max(decimal.Zero, o.Subtotal.Sub(o.Discounts.Total))
	o.Fees = fees.Calculate(o.SubtotalAfterDiscount, o.PaymentMethod)
	o.Total = o.SubtotalAfterDiscount.Add(o.Fees.Total())
	o.PointsEarned = loyalty.PointsEarned(o.SubtotalAfterDiscount)
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseFeesCalculated, Detail: "total " + o.Total.StringFixed(2)})

	info := inventory.TxnInfo{TxnID: o.ID, Actor: in.CustomerID, Source: inventory.SourceOnlineOrder}
	for i := range o.Items {
		it := &o.Items[i]
		allocs, err := s.stock.DeductFIFO(ctx, it.ProductID, it.Quantity, info)
		if err != nil {
			return o, tx.abort(ctx, err)
		}
		it.Allocations = allocs
		tx.add("restore "+it.ProductID, func(ctx context.Context) error {
			return s.stock.RestoreToBatches(ctx, allocs,
				inventory.TxnInfo{TxnID: o.ID, Actor: in.CustomerID, Source: inventory.SourceRollback, Reason: "order creation failed"})
		})
	}
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseStockDeducted})

	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Status = StatusPending
	o.StatusHistory = []StatusChange{{Status: StatusPending, At: now, Actor: in.CustomerID, Notes: "order placed"}}
	if o.PaymentMethod == fees.MethodCOD {
		o.Status = StatusConfirmed
		o.StatusHistory = append(o.StatusHistory,
			StatusChange{Status: StatusConfirmed, At: now, Actor: SystemActor.ID, Notes: "cash on delivery auto-confirmed"})
	}

	if err := s.repo.Insert(ctx, o); err != nil {
		return o, tx.abort(ctx, fmt.Errorf("persist order: %w", err))
	}
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhasePersisted, Detail: string(o.Status)})
	return o, nil
}

// checkStock loads every product and checks availability concurrently.
// Shortages are reported together, in item order.
func (s *Service) checkStock(ctx context.Context, items []ItemInput) ([]catalog.Product, error) {
	products := make([]catalog.Product, len(items))
	shortages := make([]*apperr.Shortage, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, it.ProductID)
			if err != nil {
				return err
			}
			products[i] = p
			ok, total, err := s.stock.CheckAvailability(gctx, it.ProductID, it.Qty)
			if err != nil {
				return err
			}
			if !ok {
				shortages[i] = &apperr.Shortage{ProductID: it.ProductID, Requested: it.Qty, Available: total}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var short []apperr.Shortage
	for _, sh := range shortages {
		if sh != nil {
			short = append(short, *sh)
		}
	}
	if len(short) > 0 {
		return nil, &apperr.StockError{Items: short}
	}
	return products, nil
}

func (s *Service) promotion(ctx context.Context, in CreateOrderInput, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if in.PromotionCode == "" || s.promos == nil {
		return decimal.Zero, nil
	}
	d, err := s.promos.Discount(ctx, in.PromotionCode, in.CustomerID, subtotal)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Min(subtotal, decimal.Max(decimal.Zero, d)), nil
}

// mutate loads an order under its lock, applies fn and stores the result
// only if the status is unchanged since it was read. If the write fails the
// undo steps fn returned are run and a *apperr.CompensationError is returned.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(cur Order) (Order, *saga, error)) (Order, Order, error) {
	unlock, err := s.locker.Lock(ctx, "order:"+orderID)
	if err != nil {
		return Order{}, Order{}, err
	}
	defer unlock()

	cur, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, Order{}, err
	}
	next, tx, err := fn(cur)
	if err != nil {
		return cur, Order{}, err
	}
	if err := s.repo.Update(ctx, next, cur.Status); err != nil {
		if errors.Is(err, ErrStatusMismatch) {
			s.log.Error("order changed underneath a locked update",
				zap.String("order_id", orderID), zap.String("expected", string(cur.Status)))
			return cur, Order{}, tx.abort(ctx,
				&apperr.StateError{From: string(cur.Status), To: string(next.Status), Msg: "order was modified concurrently"})
		}
		return cur, Order{}, tx.abort(ctx, fmt.Errorf("persist order %s: %w", orderID, err))
	}
	return cur, next, nil
}

// CancelOrder cancels a pending or confirmed order and compensates both ledgers.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string, actor Actor) (o Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.CancelOrder",
		attribute.String("order.id", orderID), attribute.String("actor.role", string(actor.Role)))
	defer func() { endSpan(span, err) }()

	_, o, err = s.mutate(ctx, orderID, func(cur Order) (Order, *saga, error) {
		return s.sm.cancel(ctx, cur, reason, actor)
	})
	if err != nil {
		return Order{}, err
	}
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseCancelled, Detail: reason})
	s.notify(ctx, EventOrderCancelled, o)
	return o, nil
}

// UpdateOrderStatus drives the order lifecycle one step.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, target Status, actor Actor, notes string) (o Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.UpdateOrderStatus",
		attribute.String("order.id", orderID), attribute.String("order.target", string(target)))
	defer func() { endSpan(span, err) }()

	if !target.Valid() {
		return Order{}, apperr.Validation("status", "unknown order status %q", target)
	}
	_, o, err = s.mutate(ctx, orderID, func(cur Order) (Order, *saga, error) {
		return s.sm.transition(ctx, cur, target, actor, notes)
	})
	if err != nil {
		return Order{}, err
	}
	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhaseTransitioned, Detail: string(target)})
	s.notify(ctx, EventForStatus(target), o)
	return o, nil
}

// UpdatePaymentStatus records a payment outcome. A paid pending order is
// confirmed in the same step.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, status PaymentStatus, reference string, confirmedBy Actor) (o Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.UpdatePaymentStatus",
		attribute.String("order.id", orderID), attribute.String("payment.status", string(status)))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return Order{}, apperr.Validation("payment_status", "unknown payment status %q", status)
	}
	if !confirmedBy.operator() {
		return Order{}, &apperr.AuthorizationError{ActorID: confirmedBy.ID, Role: string(confirmedBy.Role), Action: "update payment status"}
	}

	cur, o, err := s.mutate(ctx, orderID, func(cur Order) (Order, *saga, error) {
		if cur.Status == StatusCancelled && status != PaymentRefunded {
			return Order{}, nil, &apperr.StateError{From: string(cur.Status), To: string(cur.Status),
				Msg: "payment of a cancelled order can only be refunded"}
		}
		next := cur.Clone()
		now := s.now()
		next.PaymentStatus = status
		if reference != "" {
			next.PaymentReference = reference
		}
		if confirmedBy.ID != "" {
			next.PaymentConfirmedBy = confirmedBy.ID
			next.PaymentConfirmedAt = &now
		}
		next.UpdatedAt = now
		if status == PaymentPaid && cur.Status == StatusPending {
			return s.sm.transition(ctx, next, StatusConfirmed, confirmedBy, "payment confirmed")
		}
		return next, nil, nil
	})
	if err != nil {
		return Order{}, err
	}

	s.observer.Observe(ctx, Progress{OrderID: o.ID, Phase: PhasePaymentUpdated, Detail: string(status)})
	if status == PaymentPaid {
		s.notify(ctx, EventPaymentConfirmed, o)
	}
	if cur.Status != o.Status {
		s.notify(ctx, EventForStatus(o.Status), o)
	}
	return o, nil
}

func (s *Service) notify(ctx context.Context, event string, o Order) {
	if err := s.notifier.Notify(ctx, event, o); err != nil {
		s.log.Warn("notification failed",
			zap.String("event", event), zap.String("order_id", o.ID), zap.Error(err))
	}
}
