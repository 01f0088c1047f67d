package market

import (
	"sort"

	"github.com/andresty/go-market-checkout/internal/money"
)

// PlannedLine is one priced cart line ready for commit.
type PlannedLine struct {
	ProductID      int64
	SellerID       int64
	PayeeID        int64
	Quantity       int64
	UnitPriceCents int64
	DiscountCents  int64 // total discount for the line
	TotalCents     int64 // quantity*unit price - discount
}

// Plan is the priced and pre-validated form of a cart snapshot. It is pure
// data: building it touches no storage, so the pricing invariants
// (order total == sum of line totals == buyer debit == sum of payee credits)
// are testable without a database.
type Plan struct {
	Lines         []PlannedLine
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	PayeeTotals   map[int64]int64

	shortages []StockShortage
}

// BuildPlan prices every snapshot line under rule and records stock
// shortages without short-circuiting, so a validation failure reports all
// offending lines at once.
func BuildPlan(lines []SnapshotLine, rule DiscountRule) *Plan {
	p := &Plan{PayeeTotals: make(map[int64]int64, len(lines))}
	for _, l := range lines {
		if l.Quantity > l.OnHand {
			p.shortages = append(p.shortages, StockShortage{
				ProductID: l.ProductID, SellerID: l.SellerID,
				Requested: l.Quantity, OnHand: l.OnHand,
			})
		}

		subtotal := l.UnitPriceCents * l.Quantity
		var discount int64
		if rule.AppliesTo(l.ProductID, l.CategoryID) {
			discount = money.Discount(subtotal, rule.Percent)
		}
		total := subtotal - discount

		p.Lines = append(p.Lines, PlannedLine{
			ProductID:      l.ProductID,
			SellerID:       l.SellerID,
			PayeeID:        l.PayeeID,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			DiscountCents:  discount,
			TotalCents:     total,
		})
		p.SubtotalCents += subtotal
		p.DiscountCents += discount
		p.TotalCents += total
		p.PayeeTotals[l.PayeeID] += total
	}
	return p
}

// Validate checks stock first, then funds, matching the checkout order of
// failure reporting.
func (p *Plan) Validate(balanceCents int64) error {
	if len(p.shortages) > 0 {
		return &InsufficientStockError{Shortages: p.shortages}
	}
	if balanceCents < p.TotalCents {
		return &InsufficientFundsError{BalanceCents: balanceCents, TotalCents: p.TotalCents}
	}
	return nil
}

// PayeeIDs returns the credited parties in ascending order so settlement
// writes happen in a stable order across concurrent checkouts.
func (p *Plan) PayeeIDs() []int64 {
	ids := make([]int64, 0, len(p.PayeeTotals))
	for id := range p.PayeeTotals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
