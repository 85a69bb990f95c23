package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Notification event types, one per lifecycle step.
const (
	EventOrderCreated     = "order_created"
	EventOrderConfirmed   = "order_confirmed"
	EventOrderProcessing  = "order_processing"
	EventOrderOnTheWay    = "order_on_the_way"
	EventOrderCompleted   = "order_completed"
	EventOrderCancelled   = "order_cancelled"
	EventPaymentConfirmed = "payment_confirmed"
)

// EventForStatus maps a target status to its notification event.
func EventForStatus(s Status) string {
	switch s {
	case StatusConfirmed:
		return EventOrderConfirmed
	case StatusProcessing:
		return EventOrderProcessing
	case StatusOnTheWay:
		return EventOrderOnTheWay
	case StatusCompleted:
		return EventOrderCompleted
	case StatusCancelled:
		return EventOrderCancelled
	}
	return EventOrderCreated
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderEventPayload is the snapshot carried by every order notification.
type OrderEventPayload struct {
	OrderID        string          `json:"order_id"`
	CustomerID     string          `json:"customer_id"`
	Status         Status          `json:"order_status"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Total          decimal.Decimal `json:"total"`
	ItemCount      int             `json:"item_count"`
	PointsEarned   int             `json:"points_earned"`
	PointsRedeemed int             `json:"points_redeemed"`
	Reason         string          `json:"reason,omitempty"`
}

func NewOrderEventPayload(o Order) OrderEventPayload {
	p := OrderEventPayload{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		Status:         o.Status,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  o.PaymentStatus,
		Total:          o.Total,
		PointsEarned:   o.PointsEarned,
		PointsRedeemed: o.PointsRedeemed,
	}
	for _, it := range o.Items {
		p.ItemCount += it.Quantity
	}
	if o.Cancellation != nil {
		p.Reason = o.Cancellation.Reason
	}
	return p
}

// PartitionKey keys order events by order id so one order's events stay in
// sequence on a single partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
