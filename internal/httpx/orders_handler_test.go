package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-ledger/internal/catalog"
	"github.com/ariefcatur/go-order-ledger/internal/inventory"
	"github.com/ariefcatur/go-order-ledger/internal/loyalty"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	invStore := inventory.NewMemoryStore()
	invStore.AddProduct("p1")
	stock := inventory.NewLedger(inventory.LedgerDeps{Store: invStore})
	_, err := stock.ReceiveBatch(ctx, "p1", 5, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "receiver")
	require.NoError(t, err)

	ptsStore := loyalty.NewMemoryStore()
	ptsStore.AddCustomer("c1")
	points := loyalty.NewLedger(loyalty.LedgerDeps{Store: ptsStore})
	_, err = points.Adjust(ctx, "c1", 100, "opening balance", "admin")
	require.NoError(t, err)

	cat := catalog.NewMemory(catalog.Product{ID: "p1", SKU: "RICE-5KG", Name: "Rice 5kg", Price: decimal.NewFromInt(250)})
	svc := orders.NewService(orders.ServiceDeps{
		Repo:    orders.NewMemoryRepo(),
		Catalog: cat,
		Stock:   stock,
		Points:  points,
	})

	r := NewRouter(nil)
	(&OrdersHandler{Orders: svc, Products: cat, Stock: stock, Points: points}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var rd bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&rd).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func orderBody(qty, points int) map[string]any {
	return map[string]any{
		"customer_id":      "c1",
		"items":            []map[string]any{{"product_id": "p1", "qty": qty}},
		"delivery_address": "12 Mabini St",
		"payment_method":   "gcash",
		"points_to_redeem": points,
	}
}

var staffHeaders = map[string]string{HeaderActorID: "staff-1", HeaderActorRole: "staff"}

func TestCreateGetCancelFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, created := do(t, srv, http.MethodPost, "/orders", orderBody(2, 0), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := created["id"].(string)
	assert.Equal(t, "ONLINE-000001", id)
	assert.Equal(t, "pending", created["order_status"])

	resp, got := do(t, srv, http.MethodGet, "/orders/"+id, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, got["id"])

	resp, _ = do(t, srv, http.MethodPost, "/orders/"+id+"/cancel", map[string]any{"reason": "duplicate"}, staffHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/orders/"+id+"/cancel", map[string]any{"reason": "again"}, staffHeaders)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "state", body["kind"])
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/orders", orderBody(9, 0), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_stock", body["kind"])
	require.Len(t, body["shortage"], 1)

	resp, body = do(t, srv, http.MethodPost, "/orders", orderBody(1, 30), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "below_minimum", body["reason"])

	bad := orderBody(1, 0)
	delete(bad, "delivery_address")
	resp, body = do(t, srv, http.MethodPost, "/orders", bad, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "delivery_address", body["field"])

	resp, _ = do(t, srv, http.MethodGet, "/orders/ONLINE-999999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, created := do(t, srv, http.MethodPost, "/orders", orderBody(1, 0), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = do(t, srv, http.MethodPost, "/orders/"+created["id"].(string)+"/status", map[string]any{"status": "confirmed"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "authorization", body["kind"])
}

func TestRejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t)
	body := orderBody(1, 0)
	body["discount"] = 100
	resp, _ := do(t, srv, http.MethodPost, "/orders", body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStockEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/stock/validate", map[string]any{
		"items": []map[string]any{{"product_id": "p1", "qty": 8}},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])

	resp, _ = do(t, srv, http.MethodPost, "/products/p1/batches", map[string]any{"quantity": 10}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, batch := do(t, srv, http.MethodPost, "/products/p1/batches", map[string]any{"quantity": 10}, staffHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.EqualValues(t, 10, batch["remaining"])

	resp, body = do(t, srv, http.MethodPost, "/stock/validate", map[string]any{
		"items": []map[string]any{{"product_id": "p1", "qty": 8}},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])
}

func TestCustomerPoints(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/customers/c1/points", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 100, body["balance"])

	resp, _ = do(t, srv, http.MethodGet, "/customers/nobody/points", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSummaryRequiresRange(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := do(t, srv, http.MethodGet, "/orders/summary", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/orders/summary?from=2024-01-01&to=yesterday", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/orders/summary?from=2000-01-01&to=2100-01-01", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["total_orders"])
}
