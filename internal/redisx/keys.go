package redisx

import "time"

const (
	// Applied coupon slot per buyer (replaces session storage):
	// coupon:applied:{buyer_id} -> code
	KeyAppliedCoupon = "coupon:applied:%d"

	// One-shot checkout token: checkout:token:{token} -> buyer_id.
	// SETNX'd by the handler so a double-submitted request cannot place
	// two orders; the core itself is deliberately not idempotent.
	KeyCheckoutToken = "checkout:token:%s"

	// Cache of order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Cache of party balance: balance:{party_id} -> cents
	KeyBalance = "balance:%d"

	// Dedup event processing in the worker: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLAppliedCoupon = 24 * time.Hour
	TTLCheckoutToken = 24 * time.Hour
	TTLStatusCache   = 5 * time.Minute
	TTLBalanceCache  = 5 * time.Minute
	TTLDedup         = 48 * time.Hour
)
