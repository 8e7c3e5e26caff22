package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/localmart/internal/readmodel"
	"github.com/lib/pq"
)

// PostgresReadStore implements ReadStoreInterface using PostgreSQL
type PostgresReadStore struct {
	db *sql.DB
}

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

func tableFor(collection string) (string, error) {
	switch collection {
	case readmodel.CollectionProducts:
		return "read_products", nil
	case readmodel.CollectionCarts:
		return "read_carts", nil
	case readmodel.CollectionOrders:
		return "read_orders", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}

func (rs *PostgresReadStore) Set(ctx context.Context, collection, _ string, data any) error {
	return set(ctx, rs.db, collection, data)
}

func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	return get(ctx, rs.db, collection, id, false)
}

func (rs *PostgresReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	switch collection {
	case readmodel.CollectionProducts:
		return scanAll(ctx, rs.db, `SELECT `+productColumns+` FROM read_products ORDER BY created_at DESC`, scanProduct)
	case readmodel.CollectionCarts:
		return scanAll(ctx, rs.db, `SELECT `+cartColumns+` FROM read_carts`, scanCart)
	case readmodel.CollectionOrders:
		return scanAll(ctx, rs.db, `SELECT `+orderColumns+` FROM read_orders ORDER BY created_at DESC`, scanOrder)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
}

func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	table, err := tableFor(collection)
	if err != nil {
		return err
	}
	if _, err := rs.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// Update locks the row for the duration of updateFn.
func (rs *PostgresReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, found, err := get(ctx, tx, collection, id, true)
	if err != nil || !found {
		return false, err
	}
	if err := set(ctx, tx, collection, updateFn(current)); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit update: %w", err)
	}
	return true, nil
}

func set(ctx context.Context, q dbtx, collection string, data any) error {
	var err error
	switch m := data.(type) {
	case *readmodel.ProductReadModel:
		_, err = q.ExecContext(ctx, `
			INSERT INTO read_products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				store_id = EXCLUDED.store_id,
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				price = EXCLUDED.price,
				image_url = EXCLUDED.image_url,
				updated_at = EXCLUDED.updated_at
		`, m.ID, m.StoreID, m.Name, m.Description, m.Price, m.ImageURL, m.CreatedAt, m.UpdatedAt)
	case *readmodel.CartReadModel:
		lines, merr := json.Marshal(m.Lines)
		if merr != nil {
			return merr
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO read_carts (`+cartColumns+`)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				lines = EXCLUDED.lines,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`, m.ID, m.CustomerID, lines, m.Version, m.UpdatedAt)
	case *readmodel.OrderReadModel:
		items, merr := json.Marshal(m.Items)
		if merr != nil {
			return merr
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO read_orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				seller_note = EXCLUDED.seller_note,
				version = EXCLUDED.version,
				updated_at = EXCLUDED.updated_at
		`, m.ID, m.CustomerID, pq.Array(m.StoreIDs), items, m.Subtotal, m.DeliveryFee, m.Tax, m.Total,
			m.Status, m.Instructions, m.SellerNote, m.Date, m.Version, m.CreatedAt, m.UpdatedAt)
	default:
		return fmt.Errorf("%w: %s holds no %T", ErrUnknownCollection, collection, data)
	}
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", collection, err)
	}
	return nil
}

func get(ctx context.Context, q dbtx, collection, id string, forUpdate bool) (any, bool, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	var (
		item any
		err  error
	)
	switch collection {
	case readmodel.CollectionProducts:
		item, err = scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM read_products WHERE id = $1`+lock, id))
	case readmodel.CollectionCarts:
		item, err = scanCart(q.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM read_carts WHERE id = $1`+lock, id))
	case readmodel.CollectionOrders:
		item, err = scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM read_orders WHERE id = $1`+lock, id))
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	return item, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

const productColumns = `id, store_id, name, description, price, image_url, created_at, updated_at`

func scanProduct(s scanner) (any, error) {
	var p readmodel.ProductReadModel
	if err := s.Scan(&p.ID, &p.StoreID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

const cartColumns = `id, customer_id, lines, version, updated_at`

func scanCart(s scanner) (any, error) {
	var c readmodel.CartReadModel
	var lines []byte
	if err := s.Scan(&c.ID, &c.CustomerID, &lines, &c.Version, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &c.Lines); err != nil {
		return nil, err
	}
	for _, l := range c.Lines {
		c.Subtotal += l.Price * l.Quantity
	}
	return &c, nil
}

const orderColumns = `id, customer_id, store_ids, items, subtotal, delivery_fee, tax, total, status, instructions, seller_note, date, version, created_at, updated_at`

func scanOrder(s scanner) (any, error) {
	var o readmodel.OrderReadModel
	var items []byte
	if err := s.Scan(&o.ID, &o.CustomerID, pq.Array(&o.StoreIDs), &items, &o.Subtotal, &o.DeliveryFee, &o.Tax, &o.Total,
		&o.Status, &o.Instructions, &o.SellerNote, &o.Date, &o.Version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanAll(ctx context.Context, q dbtx, query string, scan func(scanner) (any, error)) ([]any, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query read models: %w", err)
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan read model: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
