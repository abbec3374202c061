package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id             TEXT PRIMARY KEY,
		store_id       TEXT NOT NULL REFERENCES stores(id),
		name           TEXT NOT NULL,
		unit_price     NUMERIC(12,2) NOT NULL CHECK (unit_price >= 0),
		stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		buyer_id   TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity   INTEGER NOT NULL CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (buyer_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id           TEXT PRIMARY KEY,
		buyer_id     TEXT NOT NULL,
		status       TEXT NOT NULL CHECK (status IN ('PENDING','PAID','SHIPPED','DONE','CANCELLED')),
		total_amount NUMERIC(14,2) NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_buyer_created_idx ON orders (buyer_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id           BIGSERIAL PRIMARY KEY,
		order_id     TEXT NOT NULL REFERENCES orders(id),
		product_id   TEXT NOT NULL,
		product_name TEXT NOT NULL,
		store_id     TEXT NOT NULL,
		unit_price   NUMERIC(12,2) NOT NULL,
		quantity     INTEGER NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id)`,
	`CREATE INDEX IF NOT EXISTS order_items_store_idx ON order_items (store_id)`,
	`CREATE TABLE IF NOT EXISTS order_events (
		event_id    TEXT PRIMARY KEY,
		order_id    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		producer    TEXT NOT NULL,
		payload     JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS order_events_order_idx ON order_events (order_id, occurred_at)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
