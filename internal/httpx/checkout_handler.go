package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/andresty/go-market-checkout/internal/kafka"
	"github.com/andresty/go-market-checkout/internal/market"
	"github.com/andresty/go-market-checkout/internal/metrics"
	"github.com/andresty/go-market-checkout/internal/redisx"
)

// CheckoutService is what the handler needs from the transactional core.
type CheckoutService interface {
	Run(ctx context.Context, buyerID int64, couponCode string) (*market.CheckoutResult, error)
}

type CheckoutHandler struct {
	Service  CheckoutService
	Redis    *redis.Client
	Producer *kafkax.Producer // order.placed
	Metrics  *metrics.CheckoutMetrics
	Name     string // producer name in event envelopes
}

type checkoutReq struct {
	BuyerID int64 `json:"buyer_id"`
}

type checkoutResp struct {
	OK            bool   `json:"ok"`
	OrderID       int64  `json:"order_id,omitempty"`
	SubtotalCents int64  `json:"subtotal_cents,omitempty"`
	DiscountCents int64  `json:"discount_cents,omitempty"`
	TotalCents    int64  `json:"total_cents,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

type checkoutErrResp struct {
	OK        bool             `json:"ok"`
	ErrorKind market.ErrorKind `json:"error_kind"`
	Detail    string           `json:"detail"`
	Retryable bool             `json:"retryable"`

	Shortages []market.StockShortage `json:"shortages,omitempty"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuyerID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid json or missing buyer_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// One-shot submission guard. The core is not idempotent by design, so
	// duplicate suppression lives here, at the caller layer. The token is
	// released again if the checkout fails, so the client may retry a
	// rejected attempt with the same key.
	var tokenKey string
	if token := r.Header.Get("Idempotency-Key"); token != "" {
		tokenKey = fmt.Sprintf(redisx.KeyCheckoutToken, token)
		set, err := h.Redis.SetNX(ctx, tokenKey, req.BuyerID, redisx.TTLCheckoutToken).Result()
		if err == nil && !set {
			writeError(w, http.StatusConflict, "duplicate checkout submission")
			return
		}
	}

	// coupon slot replaces the original session storage
	couponKey := fmt.Sprintf(redisx.KeyAppliedCoupon, req.BuyerID)
	couponCode, err := h.Redis.Get(ctx, couponKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		couponCode = "" // cache down: worst case a discount is missed, never money
	}

	res, err := h.Service.Run(ctx, req.BuyerID, couponCode)
	if err != nil {
		// no order was placed; free the key for a retry
		if tokenKey != "" {
			_ = h.Redis.Del(ctx, tokenKey).Err()
		}
		if errors.Is(err, market.ErrUnknownBuyer) {
			writeError(w, http.StatusNotFound, "buyer not found")
			return
		}
		kind := market.Kind(err)
		h.Metrics.Record(string(kind))
		resp := checkoutErrResp{ErrorKind: kind, Detail: err.Error(), Retryable: market.Retryable(err)}
		var stockErr *market.InsufficientStockError
		if errors.As(err, &stockErr) {
			resp.Shortages = stockErr.Shortages
		}
		writeJSON(w, statusForKind(kind), resp)
		return
	}
	h.Metrics.Record("committed")

	// the stored code is consumed either way: used by the order or dropped
	// as invalid
	if couponCode != "" {
		_ = h.Redis.Del(ctx, couponKey).Err()
	}
	statusKey := fmt.Sprintf(redisx.KeyOrderStatus, res.OrderID)
	_ = h.Redis.Set(ctx, statusKey, `{"status":"PENDING"}`, redisx.TTLStatusCache).Err()

	h.publishPlaced(req.BuyerID, couponCode, res, r.Header.Get("X-Request-Id"))

	resp := checkoutResp{
		OK:            true,
		OrderID:       res.OrderID,
		SubtotalCents: res.SubtotalCents,
		DiscountCents: res.DiscountCents,
		TotalCents:    res.TotalCents,
	}
	if res.CouponDropped {
		resp.Warning = "coupon expired or invalid, order placed without discount"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CheckoutHandler) publishPlaced(buyerID int64, couponCode string, res *market.CheckoutResult, traceID string) {
	if h.Producer == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     market.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Name,
		TraceID:       traceID,
		CorrelationID: fmt.Sprintf("%d", res.OrderID),
	}
	ev.Payload = kafkax.MustMarshal(market.OrderPlacedPayload{
		OrderID:       res.OrderID,
		BuyerID:       buyerID,
		TotalCents:    res.TotalCents,
		DiscountCents: res.DiscountCents,
		CouponCode:    res.CouponUsed,
		PayeeTotals:   res.PayeeTotals,
	})
	h.Producer.Publish(market.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(market.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func statusForKind(kind market.ErrorKind) int {
	switch kind {
	case market.KindEmptyCart:
		return http.StatusBadRequest
	case market.KindInsufficientStock, market.KindInsufficientFunds:
		return http.StatusConflict
	case market.KindLockTimeout:
		return http.StatusServiceUnavailable
	default:
		// NEGATIVE_STOCK and anything unclassified are server faults
		return http.StatusInternalServerError
	}
}
