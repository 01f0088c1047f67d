package market

import "time"

// Party is any account holder with a balance: buyers and seller payees
// live in the same table and settle through the same transaction ledger.
type Party struct {
	ID              int64
	FullName        string
	ShippingAddress string
	BalanceCents    int64
	CreatedAt       time.Time
}

// Seller links a storefront identity to its payee party.
type Seller struct {
	ID      int64
	PartyID int64
}

type Product struct {
	ID         int64
	CategoryID int64
	Name       string
}

// InventoryEntry is one seller's offer of one product. quantity_on_hand
// never goes negative; it is decremented only inside a committed checkout.
type InventoryEntry struct {
	SellerID       int64
	ProductID      int64
	PriceCents     int64
	QuantityOnHand int64
	UpdatedAt      time.Time
}

// CartLine is a buyer's (product, seller) pairing, either in the cart
// proper (InCart) or saved for later. Checkout consumes the in-cart subset
// destructively.
type CartLine struct {
	BuyerID   int64
	ProductID int64
	SellerID  int64
	Quantity  int64
	InCart    bool
}

// SnapshotLine is a cart line joined with live inventory and product data,
// read under lock at the start of checkout.
type SnapshotLine struct {
	ProductID      int64
	SellerID       int64
	Quantity       int64
	PayeeID        int64 // seller's party id, credited at settlement
	UnitPriceCents int64
	OnHand         int64
	CategoryID     int64
}

type Order struct {
	ID              int64
	BuyerID         int64
	ShippingAddress string
	Status          Status
	PlacedAt        time.Time
	FulfilledAt     *time.Time
}

// OrderLine is immutable once written except for FulfilledAt.
// UnitPriceCents is the original unit price at time of sale;
// DiscountCents is the total discount applied to the line.
type OrderLine struct {
	OrderID        int64
	ProductID      int64
	SellerID       int64
	Quantity       int64
	UnitPriceCents int64
	DiscountCents  int64
	FulfilledAt    *time.Time
}

// BalanceTransaction is one append-only ledger entry. For every party the
// sum of AmountCents across its transactions equals its current balance.
type BalanceTransaction struct {
	ID          int64
	PartyID     int64
	AmountCents int64 // signed: negative = debit, positive = credit
	OrderID     *int64
	CreatedAt   time.Time
}

type Coupon struct {
	Code            string
	DiscountPercent int64
	ProductID       *int64 // scope: exactly one of these set, or neither
	CategoryID      *int64
	ExpiresAt       time.Time
}
