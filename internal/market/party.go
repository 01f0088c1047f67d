package market

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PartyRepo struct{ DB *pgxpool.Pool }

func (r *PartyRepo) Get(ctx context.Context, id int64) (*Party, error) {
	var p Party
	err := r.DB.QueryRow(ctx, `
		SELECT id, full_name, shipping_address, balance_cents, created_at
		FROM parties WHERE id = $1`, id).
		Scan(&p.ID, &p.FullName, &p.ShippingAddress, &p.BalanceCents, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// AdjustBalance applies a signed top-up or withdrawal outside of any order
// and appends the matching ledger entry, keeping balance == sum(ledger).
// A withdrawal past zero fails with InsufficientFundsError.
func (r *PartyRepo) AdjustBalance(ctx context.Context, partyID, deltaCents int64) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT balance_cents FROM parties WHERE id = $1 FOR UPDATE`, partyID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if balance+deltaCents < 0 {
		return 0, &InsufficientFundsError{BalanceCents: balance, TotalCents: -deltaCents}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE parties SET balance_cents = balance_cents + $2 WHERE id = $1`,
		partyID, deltaCents); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions(party_id, amount_cents, order_id)
		VALUES ($1, $2, NULL)`, partyID, deltaCents); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance + deltaCents, nil
}
