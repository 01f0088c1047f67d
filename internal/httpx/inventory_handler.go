package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/andresty/go-market-checkout/internal/kafka"
	"github.com/andresty/go-market-checkout/internal/market"
)

// InventoryHandler is the seller-side surface: offers management and the
// fulfillment queue.
type InventoryHandler struct {
	Inventory   *market.InventoryRepo
	Fulfillment *market.FulfillmentRepo
	Producer    *kafkax.Producer // order.line.fulfilled
	Name        string
}

func (h *InventoryHandler) Register(r *chi.Mux) {
	r.Get("/inventory", h.list)
	r.Post("/inventory/upsert", h.upsert)
	r.Get("/products/{id}/offers", h.offers)
	r.Get("/fulfillment", h.fulfillmentList)
	r.Post("/fulfillment/mark", h.fulfillmentMark)
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := queryID(r, "seller_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing seller_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Inventory.ForSeller(ctx, sellerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "items": entries})
}

func (h *InventoryHandler) offers(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Inventory.OffersForProduct(ctx, productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "offers": entries})
}

type upsertReq struct {
	SellerID       int64 `json:"seller_id"`
	ProductID      int64 `json:"product_id"`
	PriceCents     int64 `json:"price_cents"`
	QuantityOnHand int64 `json:"quantity_on_hand"`
}

func (h *InventoryHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SellerID <= 0 || req.ProductID <= 0 {
		writeError(w, http.StatusBadRequest, "seller_id and product_id required")
		return
	}
	err := h.Inventory.Upsert(r.Context(), market.InventoryEntry{
		SellerID:       req.SellerID,
		ProductID:      req.ProductID,
		PriceCents:     req.PriceCents,
		QuantityOnHand: req.QuantityOnHand,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *InventoryHandler) fulfillmentList(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := queryID(r, "seller_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing seller_id")
		return
	}
	// PLACED (default) = still to ship, FULFILLED = done
	status := strings.ToUpper(r.URL.Query().Get("status"))
	pending := status != "FULFILLED"

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Fulfillment.LinesForSeller(ctx, sellerID, pending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

type markReq struct {
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	SellerID  int64 `json:"seller_id"`
}

func (h *InventoryHandler) fulfillmentMark(w http.ResponseWriter, r *http.Request) {
	var req markReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.OrderID <= 0 || req.ProductID <= 0 || req.SellerID <= 0 {
		writeError(w, http.StatusBadRequest, "order_id, product_id and seller_id required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := h.Fulfillment.MarkLine(ctx, req.OrderID, req.ProductID, req.SellerID)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "line item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.Producer != nil {
		ev := market.Envelope{
			EventID:       uuid.NewString(),
			EventType:     market.EventLineFulfilled,
			EventVersion:  1,
			OccurredAt:    time.Now().UTC(),
			Producer:      h.Name,
			TraceID:       r.Header.Get("X-Request-Id"),
			CorrelationID: fmt.Sprintf("%d", req.OrderID),
		}
		ev.Payload = kafkax.MustMarshal(market.LineFulfilledPayload{
			OrderID:     req.OrderID,
			ProductID:   req.ProductID,
			SellerID:    req.SellerID,
			OrderStatus: status,
		})
		h.Producer.Publish(market.PartitionKey(req.OrderID), kafkax.MustMarshal(ev),
			kafkago.Header{Key: "x-event-type", Value: []byte(market.EventLineFulfilled)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order_status": status})
}
