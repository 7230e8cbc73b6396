package orders

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transport is the system-of-record contract the sync engine consumes.
type Transport interface {
	GetOrders(ctx context.Context, f Filter) ([]json.RawMessage, error)
	UpdateOrderAddress(ctx context.Context, orderID string, addr DeliveryAddress) (bool, error)
}

// Repo serves raw order documents exactly as the seller/payment pipeline stored them;
// validation happens on the reading side.
type Repo struct{ DB DB }

var _ Transport = (*Repo)(nil)

func (r *Repo) GetOrders(ctx context.Context, f Filter) ([]json.RawMessage, error) {
	rows, err := r.DB.Query(ctx, `SELECT doc FROM marketplace_orders
	                              WHERE buyer = $1 ORDER BY created_at DESC`, f.Buyer)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, json.RawMessage(doc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// UpdateOrderAddress replaces the whole address document; false means no such order.
func (r *Repo) UpdateOrderAddress(ctx context.Context, orderID string, addr DeliveryAddress) (bool, error) {
	b, err := json.Marshal(addr)
	if err != nil {
		return false, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE marketplace_orders
		SET doc = jsonb_set(jsonb_set(doc, '{deliveryAddress}', $2::jsonb), '{updatedAt}', to_jsonb(now())),
		    updated_at = now()
		WHERE id = $1`, orderID, b)
	if err != nil {
		return false, fmt.Errorf("update address: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
