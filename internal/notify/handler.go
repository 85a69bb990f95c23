package notify

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

type Deduper interface {
	First(ctx context.Context, eventID string) (bool, error)
}

type StatusRecorder interface {
	Set(ctx context.Context, orderID, status string) error
}

// Sink receives rendered messages.
type Sink interface {
	Deliver(ctx context.Context, m Message) error
}

var (
	_ Deduper        = redisx.Dedup{}
	_ StatusRecorder = redisx.StatusCache{}
)

// LogSink writes messages to the log; the system has no delivery channel.
type LogSink struct{ Log *zap.Logger }

func (s LogSink) Deliver(_ context.Context, m Message) error {
	s.Log.Info("notification",
		zap.String("audience", string(m.Audience)),
		zap.String("order_id", m.OrderID),
		zap.String("title", m.Title),
		zap.String("body", m.Body),
		zap.String("priority", m.Priority),
	)
	return nil
}

type Handler struct {
	Dedup  Deduper
	Status StatusRecorder
	Sink   Sink
	Log    *zap.Logger
}

// Handle is a kafka.Handler for the order events topic. Malformed messages
// are logged and committed so they do not block the partition.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		h.Log.Error("drop malformed envelope", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	log := h.Log.With(zap.String("event_id", env.EventID), zap.String("event_type", env.EventType))
	if env.EventVersion != eventVersion {
		log.Warn("unsupported event version", zap.Int("version", env.EventVersion))
		return nil
	}

	if h.Dedup != nil {
		first, err := h.Dedup.First(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup %s: %w", env.EventID, err)
		}
		if !first {
			log.Debug("duplicate event skipped")
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil {
		log.Error("drop malformed payload", zap.Error(err))
		return nil
	}
	for _, msg := range Render(env.EventType, p) {
		if err := h.Sink.Deliver(ctx, msg); err != nil {
			log.Warn("deliver failed", zap.String("audience", string(msg.Audience)), zap.Error(err))
		}
	}
	if h.Status != nil {
		if err := h.Status.Set(ctx, p.OrderID, string(p.Status)); err != nil {
			log.Warn("status cache write failed", zap.String("order_id", p.OrderID), zap.Error(err))
		}
	}
	return nil
}
