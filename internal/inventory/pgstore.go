package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

// PGStore locks the product row (FOR UPDATE) for the life of each Update, so
// concurrent deductions of one product queue on the database.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) Update(ctx context.Context, productID string, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var stock int
	if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("product", productID)
		}
		return err
	}

	if err := fn(&pgTx{tx: tx, productID: productID}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) Batches(ctx context.Context, productID string) ([]StockBatch, error) {
	if _, err := s.CachedStock(ctx, productID); err != nil {
		return nil, err
	}
	return queryBatches(ctx, s.DB, productID)
}

func (s *PGStore) AuditTrail(ctx context.Context, productID string) ([]AuditEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, batch_id, product_id, txn_id, actor, source, reason, delta, remaining_after, created_at
		FROM stock_audit WHERE product_id=$1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.BatchID, &e.ProductID, &e.TxnID, &e.Actor, &e.Source, &e.Reason,
			&e.Delta, &e.RemainingAfter, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) CachedStock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := s.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("product", productID)
	}
	return stock, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBatches(ctx context.Context, q querier, productID string) ([]StockBatch, error) {
	rows, err := q.Query(ctx, `
		SELECT id, product_id, received_at, seq, original_qty, remaining
		FROM stock_batches WHERE product_id=$1
		ORDER BY received_at, seq`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockBatch
	for rows.Next() {
		var b StockBatch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.ReceivedAt, &b.Seq, &b.OriginalQty, &b.Remaining); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx        pgx.Tx
	productID string
}

func (t *pgTx) Batches(ctx context.Context) ([]StockBatch, error) {
	return queryBatches(ctx, t.tx, t.productID)
}

func (t *pgTx) SetRemaining(ctx context.Context, batchID string, remaining int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE stock_batches SET remaining=$3, updated_at=now()
		WHERE id=$1 AND product_id=$2 AND $3 BETWEEN 0 AND original_qty`, batchID, t.productID, remaining)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return apperr.NotFound("stock batch", batchID)
	}
	return nil
}

func (t *pgTx) InsertBatch(ctx context.Context, b StockBatch) (StockBatch, error) {
	b.ProductID = t.productID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_batches(id, product_id, received_at, original_qty, remaining)
		VALUES ($1,$2,$3,$4,$5) RETURNING seq`,
		b.ID, b.ProductID, b.ReceivedAt, b.OriginalQty, b.Remaining).Scan(&b.Seq)
	return b, err
}

func (t *pgTx) AppendAudit(ctx context.Context, e AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_audit(id, batch_id, product_id, txn_id, actor, source, reason, delta, remaining_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.BatchID, e.ProductID, e.TxnID, e.Actor, e.Source, e.Reason, e.Delta, e.RemainingAfter, e.At)
	return err
}

func (t *pgTx) AdjustStock(ctx context.Context, delta int) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at=now() WHERE id=$1`, t.productID, delta)
	return err
}
