package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Migration struct {
	Version string
	Up      string
}

// Migrations are applied in order; each runs at most once.
var Migrations = []Migration{
	{Version: "1.0.0", Up: schemaV1},
	{Version: "1.1.0", Up: indexesV1_1},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS products (
    id          TEXT PRIMARY KEY,
    sku         TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
    taxable     BOOLEAN NOT NULL DEFAULT FALSE,
    stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_batches (
    id            TEXT PRIMARY KEY,
    product_id    TEXT NOT NULL REFERENCES products(id),
    received_at   TIMESTAMPTZ NOT NULL,
    seq           BIGSERIAL NOT NULL,
    original_qty  INTEGER NOT NULL CHECK (original_qty > 0),
    remaining     INTEGER NOT NULL CHECK (remaining >= 0 AND remaining <= original_qty),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stock_audit (
    id               TEXT PRIMARY KEY,
    batch_id         TEXT NOT NULL REFERENCES stock_batches(id),
    product_id       TEXT NOT NULL REFERENCES products(id),
    txn_id           TEXT NOT NULL,
    actor            TEXT NOT NULL,
    source           TEXT NOT NULL,
    reason           TEXT NOT NULL DEFAULT '',
    delta            INTEGER NOT NULL,
    remaining_after  INTEGER NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS customers (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    points_balance  INTEGER NOT NULL DEFAULT 0 CHECK (points_balance >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS points_transactions (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES customers(id),
    type            TEXT NOT NULL,
    points          INTEGER NOT NULL,
    balance_before  INTEGER NOT NULL,
    balance_after   INTEGER NOT NULL CHECK (balance_after >= 0),
    order_id        TEXT,
    base_amount     NUMERIC(12,2),
    expires_at      TIMESTAMPTZ,
    status          TEXT NOT NULL,
    note            TEXT NOT NULL DEFAULT '',
    actor           TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL
);

CREATE SEQUENCE IF NOT EXISTS online_order_seq;

CREATE TABLE IF NOT EXISTS orders (
    id              TEXT PRIMARY KEY,
    customer_id     TEXT NOT NULL REFERENCES customers(id),
    status          TEXT NOT NULL,
    payment_status  TEXT NOT NULL,
    payment_method  TEXT NOT NULL,
    total           NUMERIC(12,2) NOT NULL,
    doc             JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
`

const indexesV1_1 = `
CREATE INDEX IF NOT EXISTS idx_stock_batches_fifo ON stock_batches(product_id, received_at, seq);
CREATE INDEX IF NOT EXISTS idx_stock_audit_product ON stock_audit(product_id, created_at);
CREATE INDEX IF NOT EXISTS idx_points_txn_customer ON points_transactions(customer_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_points_txn_earned_order
    ON points_transactions(order_id, type) WHERE type = 'earned';
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at DESC);
`

// advisory lock id, supaya replica tidak migrate bareng
const migrateLockID = 7_310_224

// Migrate applies every migration newer than the recorded schema version in
// a single transaction.
func Migrate(ctx context.Context, db *pgxpool.Pool, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrateLockID); err != nil {
			return fmt.Errorf("migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
			return fmt.Errorf("schema_version table: %w", err)
		}

		current, err := currentVersion(ctx, tx)
		if err != nil {
			return err
		}
		pending, err := Pending(current)
		if err != nil {
			return err
		}
		for _, m := range pending {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_version(version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Version, err)
			}
			log.Info("migration applied", zap.String("version", m.Version))
		}
		return nil
	})
}

func currentVersion(ctx context.Context, tx pgx.Tx) (*semver.Version, error) {
	rows, err := tx.Query(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("read schema_version: %w", err)
	}
	current := semver.MustParse("0.0.0")
	for _, s := range versions {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %q: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, nil
}

// Pending returns the migrations newer than current, in order.
func Pending(current *semver.Version) ([]Migration, error) {
	var out []Migration
	prev := semver.MustParse("0.0.0")
	for _, m := range Migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !v.GreaterThan(prev) {
			return nil, fmt.Errorf("migration %s is out of order", m.Version)
		}
		prev = v
		if v.GreaterThan(current) {
			out = append(out, m)
		}
	}
	return out, nil
}
