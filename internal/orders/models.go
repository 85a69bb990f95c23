package orders

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/fees"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is whoever asks for a lifecycle change.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SystemActor is used for changes the engine makes on its own behalf.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) operator() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin || a.Role == RoleSystem
}

type OrderItem struct {
	ProductID    string                 `json:"product_id"`
	Name         string                 `json:"name"`
	SKU          string                 `json:"sku"`
	Taxable      bool                   `json:"taxable"`
	Quantity     int                    `json:"quantity"`
	UnitPrice    decimal.Decimal        `json:"unit_price"`
	LineSubtotal decimal.Decimal        `json:"line_subtotal"`
	Allocations  []inventory.Allocation `json:"batch_allocations"`
}

type Discounts struct {
	PromotionCode string          `json:"promotion_code,omitempty"`
	Promotion     decimal.Decimal `json:"promotion"`
	Points        decimal.Decimal `json:"points"`
	Total         decimal.Decimal `json:"total"`
}

type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Notes  string    `json:"notes,omitempty"`
}

type Cancellation struct {
	Reason         string    `json:"reason"`
	CancelledBy    string    `json:"cancelled_by"`
	CancelledAt    time.Time `json:"cancelled_at"`
	StockRestored  bool      `json:"stock_restored"`
	PointsRefunded bool      `json:"points_refunded"`
}

// Order is a value. Lifecycle operations return a modified copy and leave
// their input untouched.
type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`

	Subtotal              decimal.Decimal `json:"subtotal"`
	Discounts             Discounts       `json:"discounts"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	Fees                  fees.Breakdown  `json:"fees"`
	Total                 decimal.Decimal `json:"total"`

	PaymentMethod      fees.PaymentMethod `json:"payment_method"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	PaymentReference   string             `json:"payment_reference,omitempty"`
	PaymentConfirmedBy string             `json:"payment_confirmed_by,omitempty"`
	PaymentConfirmedAt *time.Time         `json:"payment_confirmed_at,omitempty"`

	Status        Status         `json:"order_status"`
	StatusHistory []StatusChange `json:"status_history"`

	PointsRedeemed int  `json:"points_redeemed"`
	PointsEarned   int  `json:"points_earned"`
	PointsAwarded  bool `json:"points_awarded"`

	Cancellation *Cancellation `json:"cancellation,omitempty"`

	PreparedBy      string     `json:"prepared_by,omitempty"`
	ReadyAt         *time.Time `json:"ready_at,omitempty"`
	DeliveredAt     *time.Time `json:"delivered_at,omitempty"`
	DeliveryAddress string     `json:"delivery_address"`
	Notes           string     `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of o.
func (o Order) Clone() Order {
	c := o
	c.Items = make([]OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Allocations = slices.Clone(it.Allocations)
		c.Items[i] = it
	}
	c.StatusHistory = slices.Clone(o.StatusHistory)
	c.PaymentConfirmedAt = clonePtr(o.PaymentConfirmedAt)
	c.ReadyAt = clonePtr(o.ReadyAt)
	c.DeliveredAt = clonePtr(o.DeliveredAt)
	c.Cancellation = clonePtr(o.Cancellation)
	return c
}

// AllocationsByProduct groups the batch allocations per product, products
// in item order.
func (o Order) AllocationsByProduct() ([]string, map[string][]inventory.Allocation) {
	var order []string
	out := make(map[string][]inventory.Allocation)
	for _, it := range o.Items {
		if len(it.Allocations) == 0 {
			continue
		}
		if _, seen := out[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		out[it.ProductID] = append(out[it.ProductID], it.Allocations...)
	}
	return order, out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
