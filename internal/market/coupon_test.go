package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscountRuleAppliesTo(t *testing.T) {
	t.Run("global applies to everything", func(t *testing.T) {
		rule := DiscountRule{Percent: 10, Scope: ScopeGlobal}
		assert.True(t, rule.AppliesTo(1, 7))
		assert.True(t, rule.AppliesTo(99, 3))
	})

	t.Run("product scope matches product id only", func(t *testing.T) {
		rule := DiscountRule{Percent: 10, Scope: ScopeProduct, ProductID: 2}
		assert.True(t, rule.AppliesTo(2, 7))
		assert.False(t, rule.AppliesTo(1, 7)) // coupon scoped to another product leaves the line undiscounted
	})

	t.Run("category scope matches category id only", func(t *testing.T) {
		rule := DiscountRule{Percent: 10, Scope: ScopeCategory, CategoryID: 7}
		assert.True(t, rule.AppliesTo(1, 7))
		assert.True(t, rule.AppliesTo(42, 7))
		assert.False(t, rule.AppliesTo(1, 8))
	})

	t.Run("zero percent never applies", func(t *testing.T) {
		assert.False(t, NoDiscount.AppliesTo(1, 7))
	})
}
