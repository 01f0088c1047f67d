package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckoutResult is returned on commit. Warning carries the recoverable
// invalid-coupon downgrade, everything else is fatal and comes back as an
// error instead.
type CheckoutResult struct {
	OrderID       int64
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	PayeeTotals   map[int64]int64
	CouponUsed    string // code that actually discounted the order
	CouponDropped bool   // stored code was invalid/expired and got cleared
}

type Checkout struct {
	DB *pgxpool.Pool

	// LockWait bounds the FOR UPDATE waits; past it the attempt aborts
	// with ErrLockTimeout and must be restarted from scratch.
	LockWait time.Duration
}

const defaultLockWait = 5 * time.Second

// Run executes one all-or-nothing checkout for the buyer's in-cart lines:
// lock buyer row, lock inventory rows in (seller, product) order, snapshot
// the cart, resolve the coupon, price, validate stock then funds, and
// commit order + lines + inventory decrements + balance settlement.
// Any failure rolls the whole unit back.
//
// Not idempotent: a retry after commit places a second order. One-shot
// submission tokens are the caller's job.
func (c *Checkout) Run(ctx context.Context, buyerID int64, couponCode string) (*CheckoutResult, error) {
	res, err := c.run(ctx, buyerID, couponCode)
	if err != nil {
		return nil, mapLockErr(ctx, err)
	}
	return res, nil
}

func (c *Checkout) run(ctx context.Context, buyerID int64, couponCode string) (*CheckoutResult, error) {
	lockWait := c.LockWait
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}

	tx, err := c.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// scoped to this transaction only
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockWait.Milliseconds())); err != nil {
		return nil, err
	}

	// 1) lock buyer balance row first (global lock order: buyer, then
	// inventory sorted ascending) and snapshot balance + address
	var (
		balanceCents int64
		address      string
	)
	err = tx.QueryRow(ctx, `
		SELECT balance_cents, shipping_address FROM parties WHERE id = $1 FOR UPDATE`,
		buyerID).Scan(&balanceCents, &address)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownBuyer
	}
	if err != nil {
		return nil, err
	}

	// 2) cart snapshot under lock; FOR UPDATE OF i pins every referenced
	// inventory row until commit/rollback so stock numbers cannot go stale
	lines, err := snapshotCart(ctx, tx, buyerID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	// 3) resolve coupon; invalid downgrades to no discount
	now := time.Now().UTC()
	rule, err := resolveCoupon(ctx, tx, couponCode, now)
	couponDropped := false
	if errors.Is(err, ErrCouponInvalid) {
		rule, couponDropped = NoDiscount, true
	} else if err != nil {
		return nil, err
	}

	// 4-6) price and validate
	plan := BuildPlan(lines, rule)
	if err := plan.Validate(balanceCents); err != nil {
		return nil, err
	}

	// 7a) order
	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(buyer_id, shipping_address, status)
		VALUES ($1, $2, $3)
		RETURNING id`,
		buyerID, address, StatusPending).Scan(&orderID)
	if err != nil {
		return nil, err
	}

	// 7b+c) lines and guarded inventory decrements
	for _, l := range plan.Lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_lines(order_id, product_id, seller_id, quantity, unit_price_cents, discount_cents, fulfilled_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
			orderID, l.ProductID, l.SellerID, l.Quantity, l.UnitPriceCents, l.DiscountCents); err != nil {
			return nil, err
		}

		ct, err := tx.Exec(ctx, `
			UPDATE inventory
			SET quantity_on_hand = quantity_on_hand - $3, updated_at = now()
			WHERE seller_id = $1 AND product_id = $2 AND quantity_on_hand >= $3`,
			l.SellerID, l.ProductID, l.Quantity)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			// stock moved under our lock: locking bug, not a user error
			return nil, &NegativeStockError{ProductID: l.ProductID, SellerID: l.SellerID, Quantity: l.Quantity}
		}
	}

	// 7d) debit buyer, append negative ledger entry
	if _, err := tx.Exec(ctx, `
		UPDATE parties SET balance_cents = balance_cents - $2 WHERE id = $1`,
		buyerID, plan.TotalCents); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions(party_id, amount_cents, order_id)
		VALUES ($1, $2, $3)`,
		buyerID, -plan.TotalCents, orderID); err != nil {
		return nil, err
	}

	// 7e) credit each payee in ascending id order
	for _, payeeID := range plan.PayeeIDs() {
		amount := plan.PayeeTotals[payeeID]
		if _, err := tx.Exec(ctx, `
			UPDATE parties SET balance_cents = balance_cents + $2 WHERE id = $1`,
			payeeID, amount); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO transactions(party_id, amount_cents, order_id)
			VALUES ($1, $2, $3)`,
			payeeID, amount, orderID); err != nil {
			return nil, err
		}
	}

	// 7g) consume the in-cart lines; saved-for-later rows stay
	if _, err := tx.Exec(ctx, `
		DELETE FROM cart_lines WHERE buyer_id = $1 AND in_cart = TRUE`,
		buyerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	res := &CheckoutResult{
		OrderID:       orderID,
		SubtotalCents: plan.SubtotalCents,
		DiscountCents: plan.DiscountCents,
		TotalCents:    plan.TotalCents,
		PayeeTotals:   plan.PayeeTotals,
		CouponDropped: couponDropped,
	}
	if !couponDropped && couponCode != "" {
		res.CouponUsed = couponCode
	}
	return res, nil
}

// snapshotCart loads the buyer's in-cart lines joined with inventory price
// and stock, locking the inventory rows. The ORDER BY fixes the lock
// acquisition order so concurrent checkouts sharing rows cannot deadlock.
func snapshotCart(ctx context.Context, tx pgx.Tx, buyerID int64) ([]SnapshotLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT c.product_id, c.seller_id, c.quantity,
		       s.party_id, i.price_cents, i.quantity_on_hand, p.category_id
		FROM cart_lines c
		JOIN inventory i ON i.seller_id = c.seller_id AND i.product_id = c.product_id
		JOIN sellers s   ON s.id = c.seller_id
		JOIN products p  ON p.id = c.product_id
		WHERE c.buyer_id = $1 AND c.in_cart = TRUE
		ORDER BY c.seller_id, c.product_id
		FOR UPDATE OF i`,
		buyerID)
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

// Postgres error codes surfaced as a bounded-wait abort.
const (
	pgLockNotAvailable = "55P03" // lock_timeout fired
	pgDeadlockDetected = "40P01" // deadlock victim; retry from scratch
)

func mapLockErr(ctx context.Context, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgLockNotAvailable || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
