package market

import (
	"errors"
	"fmt"
)

// ErrorKind is the wire-level tag for a failed checkout; the HTTP layer
// returns it verbatim in {ok:false, error_kind, detail}.
type ErrorKind string

const (
	KindEmptyCart         ErrorKind = "EMPTY_CART"
	KindInvalidCoupon     ErrorKind = "INVALID_COUPON"
	KindInsufficientStock ErrorKind = "INSUFFICIENT_STOCK"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindLockTimeout       ErrorKind = "LOCK_TIMEOUT"
	KindNegativeStock     ErrorKind = "NEGATIVE_STOCK"
	KindInternal          ErrorKind = "INTERNAL"
)

var (
	ErrEmptyCart = errors.New("cart is empty")

	// ErrCouponInvalid is recoverable: checkout drops the stored code and
	// continues with no discount.
	ErrCouponInvalid = errors.New("coupon invalid or expired")

	// ErrLockTimeout means the buyer or inventory row locks could not be
	// acquired within the bounded wait. Retryable by the caller.
	ErrLockTimeout = errors.New("lock wait timed out")

	ErrUnknownBuyer = errors.New("buyer not found")
)

// StockShortage identifies one cart line whose requested quantity exceeds
// the quantity on hand.
type StockShortage struct {
	ProductID int64 `json:"product_id"`
	SellerID  int64 `json:"seller_id"`
	Requested int64 `json:"requested"`
	OnHand    int64 `json:"on_hand"`
}

// InsufficientStockError carries every violating line, not just the first.
type InsufficientStockError struct {
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d line(s)", len(e.Shortages))
}

type InsufficientFundsError struct {
	BalanceCents int64
	TotalCents   int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d cents, order total %d cents", e.BalanceCents, e.TotalCents)
}

// NegativeStockError means a guarded decrement found less stock than the
// locked snapshot promised. With correct lock ordering this cannot happen;
// seeing it signals a locking bug, so it is never mapped to a user-facing
// failure.
type NegativeStockError struct {
	ProductID int64
	SellerID  int64
	Quantity  int64
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("inventory (seller=%d, product=%d) would go negative decrementing by %d", e.SellerID, e.ProductID, e.Quantity)
}

// Kind maps an error from the checkout core to its wire tag.
func Kind(err error) ErrorKind {
	var stock *InsufficientStockError
	var funds *InsufficientFundsError
	var neg *NegativeStockError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return KindEmptyCart
	case errors.Is(err, ErrCouponInvalid):
		return KindInvalidCoupon
	case errors.Is(err, ErrLockTimeout):
		return KindLockTimeout
	case errors.As(err, &stock):
		return KindInsufficientStock
	case errors.As(err, &funds):
		return KindInsufficientFunds
	case errors.As(err, &neg):
		return KindNegativeStock
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry the same checkout with
// backoff. Everything else is deterministic for the same inputs.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
