package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pantypost/order-sync/internal/orders"
)

var (
	ErrNotFound = errors.New("custom request not found")
	// ErrConflict means someone else moved the request since it was read.
	ErrConflict = errors.New("custom request changed concurrently")
)

type Repo struct{ DB orders.DB }

const selectRequest = `SELECT id, buyer, seller, requested_by, title, price::text, message, status,
	edit_history, COALESCE(order_id, ''), created_at, updated_at FROM custom_requests`

func scanRequest(row pgx.Row) (CustomRequest, error) {
	var (
		r       CustomRequest
		price   string
		status  string
		history []byte
	)
	if err := row.Scan(&r.ID, &r.Buyer, &r.Seller, &r.RequestedBy, &r.Title, &price, &r.Message,
		&status, &history, &r.OrderID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return r, fmt.Errorf("request %s price: %w", r.ID, err)
	}
	r.Price = p
	st, ok := ParseStatus(status)
	if !ok {
		return r, fmt.Errorf("request %s: unknown status %q", r.ID, status)
	}
	r.Status = st
	if len(history) > 0 {
		if err := json.Unmarshal(history, &r.EditHistory); err != nil {
			return r, fmt.Errorf("request %s history: %w", r.ID, err)
		}
	}
	return r, nil
}

func (r *Repo) ListForUser(ctx context.Context, user string) ([]CustomRequest, error) {
	rows, err := r.DB.Query(ctx, selectRequest+` WHERE buyer = $1 OR seller = $1 ORDER BY updated_at DESC`, user)
	if err != nil {
		return nil, fmt.Errorf("%w: list requests: %w", orders.ErrTransport, err)
	}
	defer rows.Close()

	var out []CustomRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list requests: %w", orders.ErrTransport, err)
	}
	return out, nil
}

func (r *Repo) Get(ctx context.Context, id string) (CustomRequest, error) {
	req, err := scanRequest(r.DB.QueryRow(ctx, selectRequest+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return req, ErrNotFound
	}
	if err != nil {
		return req, fmt.Errorf("%w: get request: %w", orders.ErrTransport, err)
	}
	return req, nil
}

// Save writes next if the stored row still matches prev (status and history length),
// under a row lock, so two participants acting at once cannot both win.
func (r *Repo) Save(ctx context.Context, prev, next CustomRequest) error {
	history, err := json.Marshal(next.EditHistory)
	if err != nil {
		return err
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", orders.ErrTransport, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status string
		edits  int
	)
	err = tx.QueryRow(ctx, `SELECT status, jsonb_array_length(edit_history)
	                        FROM custom_requests WHERE id = $1 FOR UPDATE`, prev.ID).Scan(&status, &edits)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: lock request: %w", orders.ErrTransport, err)
	}
	if Status(status) != prev.Status || edits != len(prev.EditHistory) {
		return ErrConflict
	}

	if _, err := tx.Exec(ctx, `
		UPDATE custom_requests
		SET title = $2, price = $3, message = $4, status = $5, edit_history = $6,
		    order_id = NULLIF($7, ''), updated_at = $8
		WHERE id = $1`,
		next.ID, next.Title, next.Price.String(), next.Message, string(next.Status), history,
		next.OrderID, next.UpdatedAt); err != nil {
		return fmt.Errorf("%w: update request: %w", orders.ErrTransport, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", orders.ErrTransport, err)
	}
	return nil
}
