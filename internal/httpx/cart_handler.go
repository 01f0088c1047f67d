package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/andresty/go-market-checkout/internal/market"
	"github.com/andresty/go-market-checkout/internal/redisx"
)

type CartHandler struct {
	Cart    *market.CartRepo
	Coupons *market.CouponRepo
	Redis   *redis.Client
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.view)
	r.Post("/cart/lines", h.addLine)
	r.Put("/cart/lines", h.updateLine)
	r.Delete("/cart/lines", h.removeLine)
	r.Post("/cart/lines/move", h.moveLine)
	r.Post("/cart/coupon", h.applyCoupon)
}

type cartLineReq struct {
	BuyerID   int64 `json:"buyer_id"`
	ProductID int64 `json:"product_id"`
	SellerID  int64 `json:"seller_id"`
	Quantity  int64 `json:"quantity"`
	InCart    bool  `json:"in_cart"`
	ToCart    bool  `json:"to_cart"` // move direction
}

func decodeLine(r *http.Request) (cartLineReq, error) {
	var req cartLineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, err
	}
	if req.BuyerID <= 0 || req.ProductID <= 0 || req.SellerID <= 0 {
		return req, errors.New("buyer_id, product_id and seller_id required")
	}
	return req, nil
}

type cartViewLine struct {
	ProductID      int64 `json:"product_id"`
	SellerID       int64 `json:"seller_id"`
	Quantity       int64 `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
	OnHand         int64 `json:"quantity_on_hand"`
	DiscountCents  int64 `json:"discount_cents"`
	TotalCents     int64 `json:"total_cents"`
}

// view previews the cart with the applied coupon priced in. Unlocked read:
// the numbers here are advisory, checkout re-reads everything under lock.
func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := queryID(r, "buyer_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing buyer_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Cart.Preview(ctx, buyerID, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	saved, err := h.Cart.Preview(ctx, buyerID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	couponKey := fmt.Sprintf(redisx.KeyAppliedCoupon, buyerID)
	couponCode, _ := h.Redis.Get(ctx, couponKey).Result()

	rule := market.NoDiscount
	warning := ""
	if couponCode != "" {
		rule, err = h.Coupons.Resolve(ctx, couponCode, time.Now().UTC())
		if errors.Is(err, market.ErrCouponInvalid) {
			// same downgrade checkout performs: drop the slot, warn
			_ = h.Redis.Del(ctx, couponKey).Err()
			couponCode, rule = "", market.NoDiscount
			warning = "coupon expired or invalid"
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	plan := market.BuildPlan(lines, rule)
	out := make([]cartViewLine, 0, len(plan.Lines))
	for _, l := range plan.Lines {
		out = append(out, cartViewLine{
			ProductID:      l.ProductID,
			SellerID:       l.SellerID,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			DiscountCents:  l.DiscountCents,
			TotalCents:     l.TotalCents,
		})
	}
	for i, l := range lines {
		out[i].OnHand = l.OnHand
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lines":          out,
		"saved":          len(saved),
		"subtotal_cents": plan.SubtotalCents,
		"discount_cents": plan.DiscountCents,
		"total_cents":    plan.TotalCents,
		"coupon_code":    couponCode,
		"warning":        warning,
	})
}

func (h *CartHandler) addLine(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Cart.Add(r.Context(), req.BuyerID, req.ProductID, req.SellerID, req.Quantity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

func (h *CartHandler) updateLine(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = h.Cart.UpdateQuantity(r.Context(), req.BuyerID, req.ProductID, req.SellerID, req.Quantity)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "cart line not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *CartHandler) removeLine(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Cart.Remove(r.Context(), req.BuyerID, req.ProductID, req.SellerID, req.InCart); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *CartHandler) moveLine(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLine(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Cart.Move(r.Context(), req.BuyerID, req.ProductID, req.SellerID, req.Quantity, req.ToCart); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type applyCouponReq struct {
	BuyerID int64  `json:"buyer_id"`
	Code    string `json:"code"`
}

// applyCoupon validates the code now and stores it in the buyer's slot.
// At most one coupon is stored; applying a second replaces the first.
func (h *CartHandler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BuyerID <= 0 || req.Code == "" {
		writeError(w, http.StatusBadRequest, "buyer_id and code required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	couponKey := fmt.Sprintf(redisx.KeyAppliedCoupon, req.BuyerID)
	rule, err := h.Coupons.Resolve(ctx, req.Code, time.Now().UTC())
	if errors.Is(err, market.ErrCouponInvalid) {
		_ = h.Redis.Del(ctx, couponKey).Err()
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"ok": false, "error": "invalid or expired coupon code",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.Redis.Set(ctx, couponKey, req.Code, redisx.TTLAppliedCoupon).Err(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "discount_percent": rule.Percent})
}
