package test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresty/go-market-checkout/internal/market"
)

// fixture holds the ids of one seeded buyer/seller/product constellation.
type fixture struct {
	buyerID     int64
	sellerParty int64
	sellerID    int64
	categoryID  int64
	productID   int64
}

func seed(ctx context.Context, t *testing.T, pool *pgxpool.Pool, balanceCents, priceCents, onHand int64) fixture {
	t.Helper()
	var f fixture

	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO parties(full_name, shipping_address, balance_cents)
		VALUES ('Buyer', '1 Main St', $1) RETURNING id`, balanceCents).Scan(&f.buyerID))
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO parties(full_name, balance_cents) VALUES ('Seller Co', 0) RETURNING id`).Scan(&f.sellerParty))
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO sellers(party_id) VALUES ($1) RETURNING id`, f.sellerParty).Scan(&f.sellerID))
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO categories(name) VALUES ('general') RETURNING id`).Scan(&f.categoryID))
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO products(category_id, name) VALUES ($1, 'widget') RETURNING id`, f.categoryID).Scan(&f.productID))
	_, err := pool.Exec(ctx, `
		INSERT INTO inventory(seller_id, product_id, price_cents, quantity_on_hand)
		VALUES ($1, $2, $3, $4)`, f.sellerID, f.productID, priceCents, onHand)
	require.NoError(t, err)
	return f
}

func addToCart(ctx context.Context, t *testing.T, pool *pgxpool.Pool, buyerID int64, f fixture, qty int64, inCart bool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO cart_lines(buyer_id, product_id, seller_id, quantity, in_cart)
		VALUES ($1, $2, $3, $4, $5)`, buyerID, f.productID, f.sellerID, qty, inCart)
	require.NoError(t, err)
}

func balanceOf(ctx context.Context, t *testing.T, pool *pgxpool.Pool, partyID int64) int64 {
	t.Helper()
	var b int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT balance_cents FROM parties WHERE id = $1`, partyID).Scan(&b))
	return b
}

func onHandOf(ctx context.Context, t *testing.T, pool *pgxpool.Pool, f fixture) int64 {
	t.Helper()
	var q int64
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT quantity_on_hand FROM inventory WHERE seller_id = $1 AND product_id = $2`,
		f.sellerID, f.productID).Scan(&q))
	return q
}

func txSumOf(ctx context.Context, t *testing.T, pool *pgxpool.Pool, partyID int64) int64 {
	t.Helper()
	var s int64
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE party_id = $1`, partyID).Scan(&s))
	return s
}

func TestCheckoutCommitsAllEffects(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 10000, 2000, 5)
	addToCart(ctx, t, pool, f.buyerID, f, 2, true)
	addToCart(ctx, t, pool, f.buyerID, f, 1, false) // saved for later, must survive

	co := &market.Checkout{DB: pool}
	res, err := co.Run(ctx, f.buyerID, "")
	require.NoError(t, err)

	assert.EqualValues(t, 4000, res.TotalCents)
	assert.EqualValues(t, 0, res.DiscountCents)
	assert.EqualValues(t, 4000, res.PayeeTotals[f.sellerParty])

	// balances moved atomically with the inventory decrement
	assert.EqualValues(t, 6000, balanceOf(ctx, t, pool, f.buyerID))
	assert.EqualValues(t, 4000, balanceOf(ctx, t, pool, f.sellerParty))
	assert.EqualValues(t, 3, onHandOf(ctx, t, pool, f))

	// ledger mirrors the balance deltas
	assert.EqualValues(t, -4000, txSumOf(ctx, t, pool, f.buyerID))
	assert.EqualValues(t, 4000, txSumOf(ctx, t, pool, f.sellerParty))

	var status string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, res.OrderID).Scan(&status))
	assert.Equal(t, "PENDING", status)

	var lineQty, lineDiscount int64
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT quantity, discount_cents FROM order_lines WHERE order_id = $1`, res.OrderID).Scan(&lineQty, &lineDiscount))
	assert.EqualValues(t, 2, lineQty)
	assert.EqualValues(t, 0, lineDiscount)

	// cart consumed, saved-for-later untouched
	var inCart, saved int64
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE in_cart), COUNT(*) FILTER (WHERE NOT in_cart)
		FROM cart_lines WHERE buyer_id = $1`, f.buyerID).Scan(&inCart, &saved))
	assert.EqualValues(t, 0, inCart)
	assert.EqualValues(t, 1, saved)
}

func TestCheckoutInsufficientStockLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 1<<40, 2000, 1)
	addToCart(ctx, t, pool, f.buyerID, f, 3, true)

	co := &market.Checkout{DB: pool}
	_, err := co.Run(ctx, f.buyerID, "")

	var stockErr *market.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Len(t, stockErr.Shortages, 1)
	assert.EqualValues(t, 3, stockErr.Shortages[0].Requested)
	assert.EqualValues(t, 1, stockErr.Shortages[0].OnHand)

	// full rollback: nothing changed
	assert.EqualValues(t, 1, onHandOf(ctx, t, pool, f))
	assert.EqualValues(t, int64(1)<<40, balanceOf(ctx, t, pool, f.buyerID))
	var orders, cart int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM cart_lines WHERE buyer_id = $1 AND in_cart`, f.buyerID).Scan(&cart))
	assert.EqualValues(t, 0, orders)
	assert.EqualValues(t, 1, cart)
}

func TestCheckoutInsufficientFundsLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 3999, 2000, 5)
	addToCart(ctx, t, pool, f.buyerID, f, 2, true)

	co := &market.Checkout{DB: pool}
	_, err := co.Run(ctx, f.buyerID, "")

	var fundsErr *market.InsufficientFundsError
	require.True(t, errors.As(err, &fundsErr))
	assert.EqualValues(t, 3999, fundsErr.BalanceCents)
	assert.EqualValues(t, 4000, fundsErr.TotalCents)

	assert.EqualValues(t, 5, onHandOf(ctx, t, pool, f))
	assert.EqualValues(t, 3999, balanceOf(ctx, t, pool, f.buyerID))
}

func TestCheckoutGlobalCoupon(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 10000, 5000, 5)
	addToCart(ctx, t, pool, f.buyerID, f, 1, true)
	_, err := pool.Exec(ctx, `
		INSERT INTO coupons(code, discount_percent, expires_at)
		VALUES ('SAVE10', 10, now() + interval '1 day')`)
	require.NoError(t, err)

	co := &market.Checkout{DB: pool}
	res, err := co.Run(ctx, f.buyerID, "SAVE10")
	require.NoError(t, err)

	assert.EqualValues(t, 5000, res.SubtotalCents)
	assert.EqualValues(t, 500, res.DiscountCents)
	assert.EqualValues(t, 4500, res.TotalCents)
	assert.Equal(t, "SAVE10", res.CouponUsed)
	assert.False(t, res.CouponDropped)

	// the seller receives the discounted amount; books still balance
	assert.EqualValues(t, 4500, balanceOf(ctx, t, pool, f.sellerParty))
	assert.EqualValues(t, 5500, balanceOf(ctx, t, pool, f.buyerID))
}

func TestCheckoutExpiredCouponDowngrades(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 10000, 5000, 5)
	addToCart(ctx, t, pool, f.buyerID, f, 1, true)
	_, err := pool.Exec(ctx, `
		INSERT INTO coupons(code, discount_percent, expires_at)
		VALUES ('STALE', 10, now() - interval '1 day')`)
	require.NoError(t, err)

	co := &market.Checkout{DB: pool}
	res, err := co.Run(ctx, f.buyerID, "STALE")
	require.NoError(t, err)

	assert.True(t, res.CouponDropped)
	assert.Empty(t, res.CouponUsed)
	assert.EqualValues(t, 5000, res.TotalCents)
}

func TestCheckoutEmptyCart(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 10000, 2000, 5)

	co := &market.Checkout{DB: pool}
	_, err := co.Run(ctx, f.buyerID, "")
	assert.ErrorIs(t, err, market.ErrEmptyCart)
}

// Two buyers race for the last unit. Row locks serialize them: exactly one
// order commits, the loser sees the refreshed stock and fails cleanly.
func TestCheckoutConcurrentLastUnit(t *testing.T) {
	ctx := context.Background()
	pool := SetupPostgres(ctx, t)
	f := seed(ctx, t, pool, 10000, 2000, 1)

	var otherBuyer int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO parties(full_name, shipping_address, balance_cents)
		VALUES ('Buyer Two', '2 Main St', 10000) RETURNING id`).Scan(&otherBuyer))
	addToCart(ctx, t, pool, f.buyerID, f, 1, true)
	addToCart(ctx, t, pool, otherBuyer, f, 1, true)

	co := &market.Checkout{DB: pool, LockWait: 10 * time.Second}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, buyer := range []int64{f.buyerID, otherBuyer} {
		i, buyer := i, buyer
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = co.Run(ctx, buyer, "")
		}()
	}
	wg.Wait()

	var committed, outOfStock int
	for _, err := range errs {
		var stockErr *market.InsufficientStockError
		switch {
		case err == nil:
			committed++
		case errors.As(err, &stockErr):
			outOfStock++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	assert.Equal(t, 1, committed, "exactly one checkout wins the last unit")
	assert.Equal(t, 1, outOfStock)

	// no oversell, and every party's balance equals its ledger sum
	assert.EqualValues(t, 0, onHandOf(ctx, t, pool, f))
	var orders int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders))
	assert.EqualValues(t, 1, orders)

	for _, party := range []int64{f.buyerID, otherBuyer} {
		start := int64(10000)
		assert.Equal(t, start+txSumOf(ctx, t, pool, party), balanceOf(ctx, t, pool, party))
	}
	assert.Equal(t, txSumOf(ctx, t, pool, f.sellerParty), balanceOf(ctx, t, pool, f.sellerParty))
}
