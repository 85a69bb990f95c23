package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

// PGRepo stores each order as a JSONB document next to the columns used for
// filtering and the conditional status update.
type PGRepo struct{ DB *pgxpool.Pool }

func (r *PGRepo) NextID(ctx context.Context) (string, error) {
	var n int64
	if err := r.DB.QueryRow(ctx, `SELECT nextval('online_order_seq')`).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf(orderIDFormat, n), nil
}

func (r *PGRepo) Insert(ctx context.Context, o Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, customer_id, status, payment_status, payment_method, total, doc, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.CustomerID, o.Status, o.PaymentStatus, o.PaymentMethod, o.Total, doc, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Order, error) {
	var doc []byte
	err := r.DB.QueryRow(ctx, `SELECT doc FROM orders WHERE id=$1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.NotFound("order", id)
	}
	if err != nil {
		return Order{}, err
	}
	var o Order
	if err := json.Unmarshal(doc, &o); err != nil {
		return Order{}, fmt.Errorf("unmarshal order %s: %w", id, err)
	}
	return o, nil
}

func (r *PGRepo) Update(ctx context.Context, o Order, expected Status) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$3, payment_status=$4, total=$5, doc=$6, updated_at=$7
		WHERE id=$1 AND status=$2`,
		o.ID, expected, o.Status, o.PaymentStatus, o.Total, doc, o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, o.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("order", o.ID)
	}
	return ErrStatusMismatch
}

func (r *PGRepo) List(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.PaymentStatus != "" {
		add("payment_status = $%d", f.PaymentStatus)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	q := `SELECT doc FROM orders`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var o Order
		if err := json.Unmarshal(doc, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
