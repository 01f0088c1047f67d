package market

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FulfillmentRepo drives the post-checkout order lifecycle: sellers mark
// their lines shipped and the order status rolls up
// PENDING -> PARTIAL -> FULFILLED. Checkout itself never touches status.
type FulfillmentRepo struct{ DB *pgxpool.Pool }

// LineView is an order line joined with buyer shipping data for the
// seller's fulfillment queue.
type LineView struct {
	OrderID        int64
	ProductID      int64
	Quantity       int64
	UnitPriceCents int64
	DiscountCents  int64
	FulfilledAt    *time.Time
	BuyerID        int64
	BuyerAddress   string
	PlacedAt       time.Time
}

// LinesForSeller lists the seller's unfulfilled (pending=true) or already
// fulfilled line items.
func (r *FulfillmentRepo) LinesForSeller(ctx context.Context, sellerID int64, pending bool) ([]LineView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ol.order_id, ol.product_id, ol.quantity, ol.unit_price_cents,
		       ol.discount_cents, ol.fulfilled_at,
		       o.buyer_id, o.shipping_address, o.placed_at
		FROM order_lines ol
		JOIN orders o ON o.id = ol.order_id
		WHERE ol.seller_id = $1
		  AND (($2 AND ol.fulfilled_at IS NULL) OR (NOT $2 AND ol.fulfilled_at IS NOT NULL))
		ORDER BY o.placed_at DESC, ol.order_id DESC, ol.product_id`,
		sellerID, pending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LineView
	for rows.Next() {
		var v LineView
		if err := rows.Scan(&v.OrderID, &v.ProductID, &v.Quantity, &v.UnitPriceCents,
			&v.DiscountCents, &v.FulfilledAt, &v.BuyerID, &v.BuyerAddress, &v.PlacedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkLine stamps one line fulfilled (idempotent via COALESCE) and rolls
// the order status up in the same transaction. Returns the order status
// after the roll-up.
func (r *FulfillmentRepo) MarkLine(ctx context.Context, orderID, productID, sellerID int64) (Status, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE order_lines SET fulfilled_at = COALESCE(fulfilled_at, now())
		WHERE order_id = $1 AND product_id = $2 AND seller_id = $3`,
		orderID, productID, sellerID)
	if err != nil {
		return "", err
	}
	if ct.RowsAffected() == 0 {
		return "", ErrNotFound
	}

	var remaining, total int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE fulfilled_at IS NULL), COUNT(*)
		FROM order_lines WHERE order_id = $1`, orderID).Scan(&remaining, &total); err != nil {
		return "", err
	}

	var current Status
	if err := tx.QueryRow(ctx, `
		SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current); err != nil {
		return "", err
	}

	next := StatusPartial
	if remaining == 0 {
		next = StatusFulfilled
	}
	if next != current && CanTransition(current, next) {
		if next == StatusFulfilled {
			_, err = tx.Exec(ctx, `
				UPDATE orders SET status = $2, fulfilled_at = COALESCE(fulfilled_at, now())
				WHERE id = $1`, orderID, next)
		} else {
			_, err = tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, next)
		}
		if err != nil {
			return "", err
		}
		current = next
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return current, nil
}
