package notify

import (
	"fmt"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

type Audience string

const (
	AudienceStaff    Audience = "staff"
	AudienceCustomer Audience = "customer"
)

type Message struct {
	Audience Audience `json:"audience"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Priority string   `json:"priority"`
	OrderID  string   `json:"order_id"`
}

// Render builds the staff and customer messages for one order event.
// Unknown event types render nothing.
func Render(event string, p orders.OrderEventPayload) []Message {
	total := p.Total.StringFixed(2)
	msg := func(a Audience, title, priority, format string, args ...any) Message {
		return Message{Audience: a, Title: title, Body: fmt.Sprintf(format, args...), Priority: priority, OrderID: p.OrderID}
	}

	switch event {
	case orders.EventOrderCreated:
		return []Message{
			msg(AudienceStaff, "New Online Order", "medium", "New order %s from %s (₱%s)", p.OrderID, p.CustomerID, total),
			msg(AudienceCustomer, "Order Placed Successfully", "low", "Your order %s has been received. Total: ₱%s", p.OrderID, total),
		}
	case orders.EventPaymentConfirmed:
		return []Message{
			msg(AudienceStaff, "Payment Confirmed", "medium", "Payment received for order %s (₱%s)", p.OrderID, total),
			msg(AudienceCustomer, "Payment Confirmed", "low", "Your payment has been confirmed. Order %s is now being processed.", p.OrderID),
		}
	case orders.EventOrderConfirmed:
		return []Message{msg(AudienceCustomer, "Order Confirmed", "low", "Your order %s has been confirmed and will be prepared soon.", p.OrderID)}
	case orders.EventOrderProcessing:
		return []Message{msg(AudienceCustomer, "Order Being Prepared", "low", "Your order %s is now being prepared for delivery.", p.OrderID)}
	case orders.EventOrderOnTheWay:
		return []Message{msg(AudienceCustomer, "Order On The Way!", "medium", "Your order %s is out for delivery. Get ready!", p.OrderID)}
	case orders.EventOrderCompleted:
		return []Message{msg(AudienceCustomer, "Order Delivered", "low", "Your order %s has been delivered. You earned %d points! Thank you!", p.OrderID, p.PointsEarned)}
	case orders.EventOrderCancelled:
		reason := p.Reason
		if reason == "" {
			reason = "N/A"
		}
		body := fmt.Sprintf("Your order %s has been cancelled.", p.OrderID)
		if p.PaymentStatus == orders.PaymentRefunded {
			body += " Refund will be processed shortly."
		}
		return []Message{
			msg(AudienceStaff, "Order Cancelled", "medium", "Order %s has been cancelled. Reason: %s", p.OrderID, reason),
			{Audience: AudienceCustomer, Title: "Order Cancelled", Body: body, Priority: "medium", OrderID: p.OrderID},
		}
	}
	return nil
}
