package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the event log and the read model tables.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id             UUID PRIMARY KEY,
	aggregate_id   TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	data           JSONB NOT NULL,
	version        INTEGER NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (aggregate_id, version)
);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	version        INTEGER NOT NULL,
	state          JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_products (
	id          TEXT PRIMARY KEY,
	store_id    TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       INTEGER NOT NULL,
	image_url   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_read_products_store ON read_products (store_id);

CREATE TABLE IF NOT EXISTS read_carts (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	lines       JSONB NOT NULL,
	version     INTEGER NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS read_orders (
	id           TEXT PRIMARY KEY,
	customer_id  TEXT NOT NULL,
	store_ids    TEXT[] NOT NULL,
	items        JSONB NOT NULL,
	subtotal     INTEGER NOT NULL,
	delivery_fee INTEGER NOT NULL,
	tax          INTEGER NOT NULL,
	total        INTEGER NOT NULL,
	status       TEXT NOT NULL,
	instructions TEXT NOT NULL DEFAULT '',
	seller_note  TEXT NOT NULL DEFAULT '',
	date         TEXT NOT NULL,
	version      INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_read_orders_customer ON read_orders (customer_id);
CREATE INDEX IF NOT EXISTS idx_read_orders_store_ids ON read_orders USING GIN (store_ids);
`

// EnsureSchema applies Schema. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
