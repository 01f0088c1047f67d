package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscount(t *testing.T) {
	// floor division, truncated toward zero
	assert.EqualValues(t, 330, Discount(1000, 33))
	assert.EqualValues(t, 329, Discount(999, 33)) // 329.67 floors to 329
	assert.EqualValues(t, 500, Discount(5000, 10))
	assert.EqualValues(t, 1000, Discount(1000, 100))
	assert.EqualValues(t, 0, Discount(1000, 0))
	assert.EqualValues(t, 0, Discount(0, 50))
	assert.EqualValues(t, 0, Discount(1, 33))
}
