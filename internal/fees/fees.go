// Package fees computes the delivery and service fee breakdown of an order.
package fees

import "github.com/shopspring/decimal"

type PaymentMethod string

const (
	MethodCOD   PaymentMethod = "cod"
	MethodGCash PaymentMethod = "gcash"
	MethodBank  PaymentMethod = "bank"
)

var (
	DeliveryFee   = decimal.NewFromInt(50)
	CODServiceFee = decimal.NewFromInt(15)

	// PayMongo-style processing: 3.5% + ₱15 on (subtotal + delivery),
	// rounded up to the nearest ₱5, never below ₱20.
	PaymongoRate    = decimal.RequireFromString("0.035")
	PaymongoFixed   = decimal.NewFromInt(15)
	PaymongoMinimum = decimal.NewFromInt(20)
	RoundingStep    = decimal.NewFromInt(5)
)

// Valid reports whether m is an accepted payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCOD, MethodGCash, MethodBank:
		return true
	}
	return false
}

// Paymongo reports whether m is processed through the online gateway.
func (m PaymentMethod) Paymongo() bool {
	return m == MethodGCash || m == MethodBank
}

type Breakdown struct {
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	DeliveryFee     decimal.Decimal `json:"delivery_fee"`
	ServiceFee      decimal.Decimal `json:"service_fee"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	PercentageFee   decimal.Decimal `json:"percentage_fee"`
	FixedFee        decimal.Decimal `json:"fixed_fee"`
	CalculatedTotal decimal.Decimal `json:"calculated_total"`
}

// Total returns delivery plus service fee.
func (b Breakdown) Total() decimal.Decimal {
	return b.DeliveryFee.Add(b.ServiceFee)
}

// Calculate returns the fee breakdown for an order whose subtotal, after all
// discounts, is subtotalAfterDiscount. Unknown methods fall back to the flat
// cash-on-delivery service fee.
func Calculate(subtotalAfterDiscount decimal.Decimal, method PaymentMethod) Breakdown {
	b := Breakdown{
		PaymentMethod: method,
		DeliveryFee:   DeliveryFee,
	}
	if !method.Paymongo() {
		b.ServiceFee = CODServiceFee
		b.CalculatedTotal = CODServiceFee
		return b
	}

	b.BaseAmount = subtotalAfterDiscount.Add(DeliveryFee)
	b.PercentageFee = b.BaseAmount.Mul(PaymongoRate)
	b.FixedFee = PaymongoFixed
	b.CalculatedTotal = b.PercentageFee.Add(PaymongoFixed)

	rounded := b.CalculatedTotal.Div(RoundingStep).Ceil().Mul(RoundingStep)
	b.ServiceFee = decimal.Max(rounded, PaymongoMinimum)
	return b
}
