// Package notify carries order events from the engine to the notifier
// process over Kafka and renders them into staff and customer messages.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

const (
	eventVersion       = 1
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

var _ Publisher = (*kafkax.Producer)(nil)

// KafkaNotifier is the orders.Notifier of the API process. Notify only
// enqueues; delivery failures surface in the producer's log.
type KafkaNotifier struct {
	Pub      Publisher
	Producer string
	Now      func() time.Time
}

var _ orders.Notifier = (*KafkaNotifier)(nil)

func (n *KafkaNotifier) Notify(ctx context.Context, event string, o orders.Order) error {
	payload, err := kafkax.Marshal(orders.NewOrderEventPayload(o))
	if err != nil {
		return err
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     event,
		EventVersion:  eventVersion,
		OccurredAt:    now().UTC(),
		Producer:      n.Producer,
		CorrelationID: o.ID,
		Payload:       payload,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	b, err := kafkax.Marshal(env)
	if err != nil {
		return err
	}
	headers := kafkax.InjectTrace(ctx,
		kafkago.Header{Key: HeaderEventType, Value: []byte(event)},
		kafkago.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(eventVersion))},
	)
	if err := n.Pub.Publish(orders.PartitionKey(o.ID), b, headers...); err != nil {
		return fmt.Errorf("notify %s %s: %w", event, o.ID, err)
	}
	return nil
}
