package orders

import (
	"context"

	"go.uber.org/zap"
)

type Phase string

const (
	PhaseValidated      Phase = "validated"
	PhasePointsRedeemed Phase = "points_redeemed"
	PhaseFeesCalculated Phase = "fees_calculated"
	PhaseStockDeducted  Phase = "stock_deducted"
	PhasePersisted      Phase = "persisted"
	PhaseFailed         Phase = "failed"
	PhaseCancelled      Phase = "cancelled"
	PhaseTransitioned   Phase = "transitioned"
	PhasePaymentUpdated Phase = "payment_updated"
)

// Progress describes one completed phase of an order operation.
type Progress struct {
	OrderID string
	Phase   Phase
	Detail  string
	Err     error
}

// Observer receives progress callbacks from Service. Implementations must
// not block.
type Observer interface {
	Observe(ctx context.Context, p Progress)
}

// LogObserver writes progress to a zap logger.
type LogObserver struct{ Log *zap.Logger }

func (o LogObserver) Observe(_ context.Context, p Progress) {
	fields := []zap.Field{zap.String("order_id", p.OrderID), zap.String("phase", string(p.Phase))}
	if p.Detail != "" {
		fields = append(fields, zap.String("detail", p.Detail))
	}
	if p.Err != nil {
		o.Log.Warn("order progress", append(fields, zap.Error(p.Err))...)
		return
	}
	o.Log.Info("order progress", fields...)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Progress) {}
