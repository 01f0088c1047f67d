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

// OrdersHandler is the external read surface over orders, lines and the
// transaction ledger.
type OrdersHandler struct {
	Store *market.Store
	Redis *redis.Client
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.detail)
	r.Get("/orders/{id}/status", h.status)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := queryID(r, "buyer_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing buyer_id")
		return
	}
	limit, _ := queryID(r, "limit")
	offset := int64(0)
	if n, ok := queryID(r, "offset"); ok {
		offset = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	orders, err := h.Store.OrdersForBuyer(ctx, buyerID, int(limit), int(offset))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(orders), "orders": orders})
}

func (h *OrdersHandler) detail(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Store.GetOrder(ctx, orderID)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines, err := h.Store.OrderLines(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var subtotal, discount, total int64
	for _, l := range lines {
		lineSubtotal := l.UnitPriceCents * l.Quantity
		subtotal += lineSubtotal
		discount += l.DiscountCents
		total += lineSubtotal - l.DiscountCents
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":          order,
		"lines":          lines,
		"subtotal_cents": subtotal,
		"discount_cents": discount,
		"total_cents":    total,
	})
}

// status serves from the Redis read model first, falling back to the store
// and repopulating the cache.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	order, err := h.Store.GetOrder(ctx, orderID)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b, _ := json.Marshal(map[string]any{"status": order.Status})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
