package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxnType string

const (
	TypeEarned   TxnType = "earned"
	TypeRedeemed TxnType = "redeemed"
	TypeRefunded TxnType = "refunded"
	TypeAdjusted TxnType = "adjusted"
)

const StatusActive = "active"

// Transaction is one append-only ledger line. Points is the signed delta.
type Transaction struct {
	ID            string           `json:"id"`
	CustomerID    string           `json:"customer_id"`
	Type          TxnType          `json:"type"`
	Points        int              `json:"points"`
	BalanceBefore int              `json:"balance_before"`
	BalanceAfter  int              `json:"balance_after"`
	OrderID       string           `json:"order_id,omitempty"`
	BaseAmount    *decimal.Decimal `json:"base_amount,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	Status        string           `json:"status"`
	Note          string           `json:"note,omitempty"`
	Actor         string           `json:"actor,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

const (
	PointsPerPeso = 4
	MinRedemption = 40
	ExpiryPeriod  = 365 * 24 * time.Hour
)

var (
	// EarnRate is applied to the amount actually charged after discounts.
	EarnRate = decimal.RequireFromString("0.20")

	MaxDiscount      = decimal.NewFromInt(20)
	MaxDiscountShare = decimal.RequireFromString("0.20")
)

// PointsEarned is floor(net * 0.20); non-positive amounts earn nothing.
func PointsEarned(net decimal.Decimal) int {
	if !net.IsPositive() {
		return 0
	}
	return int(net.Mul(EarnRate).Floor().IntPart())
}

// Discount converts redeemed points to pesos.
func Discount(points int) decimal.Decimal {
	return decimal.NewFromInt(int64(points)).Div(decimal.NewFromInt(PointsPerPeso))
}

// CapPoints is the largest redemption allowed on subtotal:
// floor(min(20, 20% of subtotal) * 4).
func CapPoints(subtotal decimal.Decimal) int {
	limit := decimal.Min(MaxDiscount, subtotal.Mul(MaxDiscountShare))
	if limit.IsNegative() {
		return 0
	}
	return int(limit.Mul(decimal.NewFromInt(PointsPerPeso)).Floor().IntPart())
}
