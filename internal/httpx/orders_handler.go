package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
	"github.com/ariefcatur/go-order-ledger/internal/catalog"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/loyalty"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

// Callers identify themselves with these headers; authentication happens
// upstream of this service.
const (
	HeaderActorID        = "X-Actor-Id"
	HeaderActorRole      = "X-Actor-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type ProductLister interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
}

type StockAdmin interface {
	ReceiveBatch(ctx context.Context, productID string, qty int, receivedAt time.Time, actor string) (inventory.StockBatch, error)
	Batches(ctx context.Context, productID string) ([]inventory.StockBatch, error)
	AuditTrail(ctx context.Context, productID string) ([]inventory.AuditEntry, error)
}

type PointsReader interface {
	GetBalance(ctx context.Context, customerID string) (int, error)
	History(ctx context.Context, customerID string) ([]loyalty.Transaction, error)
}

type OrdersHandler struct {
	Orders   *orders.Service
	Products ProductLister
	Stock    StockAdmin
	Points   PointsReader
	Log      *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/summary", h.summary)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/cancel", h.cancelOrder)
		r.Post("/{id}/status", h.updateStatus)
		r.Post("/{id}/payment", h.updatePayment)
	})
	r.Post("/stock/validate", h.validateStock)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}/batches", h.listBatches)
	r.Post("/products/{id}/batches", h.receiveBatch)
	r.Get("/products/{id}/audit", h.auditTrail)
	r.Get("/customers/{id}/points", h.customerPoints)
}

func actorFrom(r *http.Request) orders.Actor {
	return orders.Actor{ID: r.Header.Get(HeaderActorID), Role: orders.Role(r.Header.Get(HeaderActorRole))}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return false
	}
	return true
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if !decode(w, r, &in) {
		return
	}
	in.IdempotencyKey = r.Header.Get(HeaderIdempotencyKey)

	o, err := h.Orders.CreateOrder(r.Context(), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.ListFilter{
		CustomerID:    q.Get("customer_id"),
		Status:        orders.Status(q.Get("status")),
		PaymentStatus: orders.PaymentStatus(q.Get("payment_status")),
	}
	var err error
	if f.From, err = parseTime(q.Get("from"), false); err != nil {
		badRequest(w, "from: "+err.Error())
		return
	}
	if f.To, err = parseTime(q.Get("to"), true); err != nil {
		badRequest(w, "to: "+err.Error())
		return
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
	}
	list, err := h.Orders.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason, actorFrom(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusReq struct {
	Status orders.Status `json:"status"`
	Notes  string        `json:"notes"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorFrom(r), req.Notes)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type paymentReq struct {
	Status    orders.PaymentStatus `json:"payment_status"`
	Reference string               `json:"reference"`
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Orders.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Reference, actorFrom(r))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type validateReq struct {
	Items []orders.ItemInput `json:"items"`
}

func (h *OrdersHandler) validateStock(w http.ResponseWriter, r *http.Request) {
	var req validateReq
	if !decode(w, r, &req) {
		return
	}
	rep, err := h.Orders.ValidateStock(r.Context(), req.Items)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *OrdersHandler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"), false)
	if err != nil {
		badRequest(w, "from: "+err.Error())
		return
	}
	to, err := parseTime(q.Get("to"), true)
	if err != nil {
		badRequest(w, "to: "+err.Error())
		return
	}
	sum, err := h.Orders.GetOrderSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Products.ListProducts(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *OrdersHandler) listBatches(w http.ResponseWriter, r *http.Request) {
	bs, err := h.Stock.Batches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *OrdersHandler) auditTrail(w http.ResponseWriter, r *http.Request) {
	es, err := h.Stock.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

type receiveReq struct {
	Quantity   int       `json:"quantity"`
	ReceivedAt time.Time `json:"received_at"`
}

func (h *OrdersHandler) receiveBatch(w http.ResponseWriter, r *http.Request) {
	var req receiveReq
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if actor.Role != orders.RoleStaff && actor.Role != orders.RoleAdmin {
		writeError(w, h.Log, &apperr.AuthorizationError{ActorID: actor.ID, Role: string(actor.Role), Action: "receive stock"})
		return
	}
	b, err := h.Stock.ReceiveBatch(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.ReceivedAt, actor.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

type pointsResp struct {
	CustomerID string                `json:"customer_id"`
	Balance    int                   `json:"balance"`
	History    []loyalty.Transaction `json:"history"`
}

func (h *OrdersHandler) customerPoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := h.Points.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	hist, err := h.Points.History(r.Context(), id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResp{CustomerID: id, Balance: bal, History: hist})
}

// parseTime accepts RFC 3339 timestamps or bare dates; empty is the zero
// time. A bare date used as a range end covers the whole day.
func parseTime(s string, end bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}
