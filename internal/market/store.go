package market

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store exposes the durable order, order-line and ledger records for
// external read access.
type Store struct{ DB *pgxpool.Pool }

var ErrNotFound = errors.New("not found")

func (s *Store) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	var o Order
	err := s.DB.QueryRow(ctx, `
		SELECT id, buyer_id, shipping_address, status, placed_at, fulfilled_at
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.ShippingAddress, &o.Status, &o.PlacedAt, &o.FulfilledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Store) OrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id, product_id, seller_id, quantity, unit_price_cents, discount_cents, fulfilled_at
		FROM order_lines WHERE order_id = $1
		ORDER BY seller_id, product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.SellerID, &l.Quantity,
			&l.UnitPriceCents, &l.DiscountCents, &l.FulfilledAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) OrdersForBuyer(ctx context.Context, buyerID int64, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, buyer_id, shipping_address, status, placed_at, fulfilled_at
		FROM orders WHERE buyer_id = $1
		ORDER BY placed_at DESC, id DESC
		LIMIT $2 OFFSET $3`, buyerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.ShippingAddress, &o.Status, &o.PlacedAt, &o.FulfilledAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// TransactionsForParty returns the append-only ledger, newest first.
func (s *Store) TransactionsForParty(ctx context.Context, partyID int64) ([]BalanceTransaction, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, party_id, amount_cents, order_id, created_at
		FROM transactions WHERE party_id = $1
		ORDER BY created_at DESC, id DESC`, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceTransaction
	for rows.Next() {
		var t BalanceTransaction
		if err := rows.Scan(&t.ID, &t.PartyID, &t.AmountCents, &t.OrderID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
