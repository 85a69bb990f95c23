// Package catalog is the read-only product lookup used to snapshot prices
// at order time.
package catalog

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type Product struct {
	ID        string          `json:"id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Taxable   bool            `json:"taxable"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// Memory is a map-backed Catalog for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[string]Product)}
	for _, p := range products {
		m.Put(p)
	}
	return m
}

func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) GetProduct(_ context.Context, id string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, apperr.NotFound("product", id)
	}
	return p, nil
}

func (m *Memory) ListProducts(context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Product) int { return strings.Compare(a.SKU, b.SKU) })
	return out, nil
}

// Postgres reads the products table. Stock is the cached figure maintained
// by the inventory ledger.
type Postgres struct{ DB *pgxpool.Pool }

const selectProduct = `SELECT id, sku, name, price, taxable, stock, created_at, updated_at FROM products`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Taxable, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Postgres) GetProduct(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, selectProduct+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.NotFound("product", id)
	}
	return p, err
}

func (r *Postgres) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, selectProduct+` ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert creates or updates a product row without touching its stock.
func (r *Postgres) Upsert(ctx context.Context, p Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, sku, name, price, taxable, stock)
		VALUES ($1,$2,$3,$4,$5,0)
		ON CONFLICT (id) DO UPDATE
		SET sku=EXCLUDED.sku, name=EXCLUDED.name, price=EXCLUDED.price, taxable=EXCLUDED.taxable, updated_at=now()`,
		p.ID, p.SKU, p.Name, p.Price, p.Taxable)
	return err
}
