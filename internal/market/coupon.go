package market

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CouponScope int

const (
	ScopeGlobal CouponScope = iota
	ScopeProduct
	ScopeCategory
)

// DiscountRule is the resolved form of a coupon: a percentage plus the
// applicability restriction. The zero value is "no discount".
type DiscountRule struct {
	Percent    int64
	Scope      CouponScope
	ProductID  int64 // set when Scope == ScopeProduct
	CategoryID int64 // set when Scope == ScopeCategory
}

// NoDiscount applies to nothing (Percent 0) and is what an absent or
// invalidated coupon resolves to.
var NoDiscount = DiscountRule{}

// AppliesTo reports whether the rule discounts a line with the given
// product and category. Global rules always apply.
func (r DiscountRule) AppliesTo(productID, categoryID int64) bool {
	if r.Percent <= 0 {
		return false
	}
	switch r.Scope {
	case ScopeGlobal:
		return true
	case ScopeProduct:
		return r.ProductID == productID
	case ScopeCategory:
		return r.CategoryID == categoryID
	}
	return false
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type CouponRepo struct{ DB *pgxpool.Pool }

// Resolve returns the discount rule for code, valid at now.
// Empty code resolves to NoDiscount with no error. A code that matches no
// unexpired coupon returns ErrCouponInvalid; callers decide whether that
// is fatal (applying a coupon) or a downgrade (checkout).
func (r *CouponRepo) Resolve(ctx context.Context, code string, now time.Time) (DiscountRule, error) {
	return resolveCoupon(ctx, r.DB, code, now)
}

func resolveCoupon(ctx context.Context, q rowQuerier, code string, now time.Time) (DiscountRule, error) {
	if code == "" {
		return NoDiscount, nil
	}
	var (
		percent    int64
		productID  *int64
		categoryID *int64
	)
	err := q.QueryRow(ctx, `
		SELECT discount_percent, product_id, category_id
		FROM coupons
		WHERE code = $1 AND expires_at > $2`,
		code, now).Scan(&percent, &productID, &categoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return NoDiscount, ErrCouponInvalid
	}
	if err != nil {
		return NoDiscount, err
	}

	rule := DiscountRule{Percent: percent}
	switch {
	case productID != nil:
		rule.Scope = ScopeProduct
		rule.ProductID = *productID
	case categoryID != nil:
		rule.Scope = ScopeCategory
		rule.CategoryID = *categoryID
	}
	return rule, nil
}
