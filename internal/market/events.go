package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced   = "OrderPlaced"
	EventLineFulfilled = "OrderLineFulfilled"
)

// Envelope is the versioned wrapper every published event rides in.
type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "checkout-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id as string
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads ----

type PlacedLine struct {
	ProductID      int64 `json:"product_id"`
	SellerID       int64 `json:"seller_id"`
	Quantity       int64 `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	DiscountCents  int64 `json:"discount_cents"`
}

// OrderPlacedPayload is published after a checkout commits so read models
// (status cache, balance cache, exports) can refresh without blocking the
// transaction.
type OrderPlacedPayload struct {
	OrderID       int64           `json:"order_id"`
	BuyerID       int64           `json:"buyer_id"`
	TotalCents    int64           `json:"total_cents"`
	DiscountCents int64           `json:"discount_cents"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	Lines         []PlacedLine    `json:"lines"`
	PayeeTotals   map[int64]int64 `json:"payee_totals"`
}

type LineFulfilledPayload struct {
	OrderID     int64  `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	SellerID    int64  `json:"seller_id"`
	OrderStatus Status `json:"order_status"` // status after roll-up
}
