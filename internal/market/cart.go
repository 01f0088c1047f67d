package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CartRepo manages the buyer's ephemeral cart and saved-for-later lines.
// These are single-writer (the owning buyer) except for the deletion done
// by checkout itself.
type CartRepo struct{ DB *pgxpool.Pool }

func (r *CartRepo) Add(ctx context.Context, buyerID, productID, sellerID, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("invalid quantity %d", qty)
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_lines(buyer_id, product_id, seller_id, quantity, in_cart)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (buyer_id, product_id, seller_id, in_cart)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		buyerID, productID, sellerID, qty)
	return err
}

func (r *CartRepo) UpdateQuantity(ctx context.Context, buyerID, productID, sellerID, qty int64) error {
	if qty < 1 {
		return fmt.Errorf("quantity must be at least 1")
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_lines SET quantity = $4
		WHERE buyer_id = $1 AND product_id = $2 AND seller_id = $3 AND in_cart = TRUE`,
		buyerID, productID, sellerID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CartRepo) Remove(ctx context.Context, buyerID, productID, sellerID int64, inCart bool) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM cart_lines
		WHERE buyer_id = $1 AND product_id = $2 AND seller_id = $3 AND in_cart = $4`,
		buyerID, productID, sellerID, inCart)
	return err
}

// Move shifts qty units of a line between the cart and the saved-for-later
// list (toCart selects the direction): upsert into the destination,
// decrement the source, drop the source row once it hits zero. One
// transaction so a crash cannot duplicate or lose units.
func (r *CartRepo) Move(ctx context.Context, buyerID, productID, sellerID, qty int64, toCart bool) error {
	if qty <= 0 {
		return fmt.Errorf("invalid quantity %d", qty)
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// lock the source line and make sure it can supply qty units
	var available int64
	err = tx.QueryRow(ctx, `
		SELECT quantity FROM cart_lines
		WHERE buyer_id = $1 AND product_id = $2 AND seller_id = $3 AND in_cart = $4
		FOR UPDATE`,
		buyerID, productID, sellerID, !toCart).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if qty > available {
		return fmt.Errorf("cannot move %d units, line holds %d", qty, available)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO cart_lines(buyer_id, product_id, seller_id, quantity, in_cart)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (buyer_id, product_id, seller_id, in_cart)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`,
		buyerID, productID, sellerID, qty, toCart); err != nil {
		return err
	}
	if qty == available {
		_, err = tx.Exec(ctx, `
			DELETE FROM cart_lines
			WHERE buyer_id = $1 AND product_id = $2 AND seller_id = $3 AND in_cart = $4`,
			buyerID, productID, sellerID, !toCart)
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE cart_lines SET quantity = quantity - $4
			WHERE buyer_id = $1 AND product_id = $2 AND seller_id = $3 AND in_cart = $5`,
			buyerID, productID, sellerID, qty, !toCart)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Preview reads the in-cart lines joined with live pricing without taking
// locks. It feeds the cart view and the pre-checkout total preview; the
// authoritative snapshot happens under lock inside Checkout.Run.
func (r *CartRepo) Preview(ctx context.Context, buyerID int64, inCart bool) ([]SnapshotLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.product_id, c.seller_id, c.quantity,
		       s.party_id, i.price_cents, i.quantity_on_hand, p.category_id
		FROM cart_lines c
		JOIN inventory i ON i.seller_id = c.seller_id AND i.product_id = c.product_id
		JOIN sellers s   ON s.id = c.seller_id
		JOIN products p  ON p.id = c.product_id
		WHERE c.buyer_id = $1 AND c.in_cart = $2
		ORDER BY c.seller_id, c.product_id`,
		buyerID, inCart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotLine
	for rows.Next() {
		var l SnapshotLine
		if err := rows.Scan(&l.ProductID, &l.SellerID, &l.Quantity,
			&l.PayeeID, &l.UnitPriceCents, &l.OnHand, &l.CategoryID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
