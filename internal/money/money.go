package money

// All amounts in the system are whole cents (int64). Display conversion
// to a major unit is left to clients.

// Discount returns percent of amountCents, truncated toward zero.
// Discount(1000, 33) == 330, Discount(999, 33) == 329. The truncation is
// part of the pricing contract: order totals are reproducible bit-for-bit.
func Discount(amountCents, percent int64) int64 {
	return amountCents * percent / 100
}
