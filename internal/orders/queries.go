package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/fees"
)

func (s *Service) GetOrderByID(ctx context.Context, orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, apperr.Validation("order_id", "required")
	}
	return s.repo.Get(ctx, orderID)
}

// ListOrders returns orders matching f, newest first.
func (s *Service) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("status", "unknown order status %q", f.Status)
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return nil, apperr.Validation("payment_status", "unknown payment status %q", f.PaymentStatus)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, apperr.Validation("to", "must not be before from")
	}
	return s.repo.List(ctx, f)
}

type StockLine struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	OK        bool   `json:"ok"`
}

type StockReport struct {
	Valid bool        `json:"valid"`
	Lines []StockLine `json:"lines"`
}

// ValidateStock reports availability per line without reserving anything.
func (s *Service) ValidateStock(ctx context.Context, items []ItemInput) (StockReport, error) {
	if len(items) == 0 {
		return StockReport{}, apperr.Validation("items", "at least one item is required")
	}
	report := StockReport{Valid: true}
	for _, it := range mergeItems(items) {
		if it.ProductID == "" || it.Qty <= 0 {
			return StockReport{}, apperr.Validation("items", "product and positive quantity required")
		}
		ok, total, err := s.stock.CheckAvailability(ctx, it.ProductID, it.Qty)
		if err != nil {
			return StockReport{}, err
		}
		report.Lines = append(report.Lines, StockLine{ProductID: it.ProductID, Requested: it.Qty, Available: total, OK: ok})
		report.Valid = report.Valid && ok
	}
	return report, nil
}

type Summary struct {
	From              time.Time                              `json:"from"`
	To                time.Time                              `json:"to"`
	TotalOrders       int                                    `json:"total_orders"`
	CompletedOrders   int                                    `json:"completed_orders"`
	CancelledOrders   int                                    `json:"cancelled_orders"`
	Revenue           decimal.Decimal                        `json:"total_revenue"`
	AverageOrderValue decimal.Decimal                        `json:"avg_order_value"`
	RevenueByMethod   map[fees.PaymentMethod]decimal.Decimal `json:"payment_method_breakdown"`
}

// GetOrderSummary aggregates orders created in [from, to]. Revenue counts
// completed orders only; the average is over every order in range.
func (s *Service) GetOrderSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return Summary{}, apperr.Validation("range", "from and to are required and from must not be after to")
	}
	list, err := s.repo.List(ctx, ListFilter{From: from, To: to})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		From:              from,
		To:                to,
		Revenue:           decimal.Zero,
		AverageOrderValue: decimal.Zero,
		RevenueByMethod:   make(map[fees.PaymentMethod]decimal.Decimal),
	}
	gross := decimal.Zero
	for _, o := range list {
		sum.TotalOrders++
		gross = gross.Add(o.Total)
		switch o.Status {
		case StatusCompleted:
			sum.CompletedOrders++
			sum.Revenue = sum.Revenue.Add(o.Total)
			sum.RevenueByMethod[o.PaymentMethod] = sum.RevenueByMethod[o.PaymentMethod].Add(o.Total)
		case StatusCancelled:
			sum.CancelledOrders++
		}
	}
	if sum.TotalOrders > 0 {
		sum.AverageOrderValue = gross.Div(decimal.NewFromInt(int64(sum.TotalOrders))).Round(2)
	}
	return sum, nil
}
