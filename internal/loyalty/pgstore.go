package loyalty

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

// PGStore serializes per customer with FOR UPDATE on the customers row.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Update(ctx context.Context, customerID string, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance int
	if err := tx.QueryRow(ctx, `SELECT points_balance FROM customers WHERE id=$1 FOR UPDATE`, customerID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("customer", customerID)
		}
		return err
	}

	if err := fn(&pgTx{tx: tx, customerID: customerID, balance: balance}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Balance(ctx context.Context, customerID string) (int, error) {
	var balance int
	err := s.DB.QueryRow(ctx, `SELECT points_balance FROM customers WHERE id=$1`, customerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("customer", customerID)
	}
	return balance, err
}

const selectTxn = `
	SELECT id, customer_id, type, points, balance_before, balance_after, COALESCE(order_id, ''),
	       base_amount, expires_at, status, note, actor, created_at
	FROM points_transactions`

func scanTxn(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.CustomerID, &t.Type, &t.Points, &t.BalanceBefore, &t.BalanceAfter, &t.OrderID,
		&t.BaseAmount, &t.ExpiresAt, &t.Status, &t.Note, &t.Actor, &t.CreatedAt)
	return t, err
}

func (s *PGStore) History(ctx context.Context, customerID string) ([]Transaction, error) {
	if _, err := s.Balance(ctx, customerID); err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, selectTxn+` WHERE customer_id=$1 ORDER BY created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx         pgx.Tx
	customerID string
	balance    int
}

func (t *pgTx) Balance(context.Context) (int, error) { return t.balance, nil }

func (t *pgTx) Append(ctx context.Context, e Transaction) error {
	var orderID *string
	if e.OrderID != "" {
		orderID = &e.OrderID
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO points_transactions(id, customer_id, type, points, balance_before, balance_after,
		                                order_id, base_amount, expires_at, status, note, actor, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.CustomerID, e.Type, e.Points, e.BalanceBefore, e.BalanceAfter,
		orderID, e.BaseAmount, e.ExpiresAt, e.Status, e.Note, e.Actor, e.CreatedAt); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `UPDATE customers SET points_balance=$2, updated_at=now() WHERE id=$1`,
		t.customerID, e.BalanceAfter); err != nil {
		return err
	}
	t.balance = e.BalanceAfter
	return nil
}

func (t *pgTx) FindByOrder(ctx context.Context, orderID string, typ TxnType) (Transaction, bool, error) {
	row := t.tx.QueryRow(ctx, selectTxn+` WHERE customer_id=$1 AND order_id=$2 AND type=$3 LIMIT 1`,
		t.customerID, orderID, typ)
	out, err := scanTxn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}
	return out, true, nil
}
