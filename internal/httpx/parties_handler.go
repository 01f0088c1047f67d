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

type PartiesHandler struct {
	Parties *market.PartyRepo
	Store   *market.Store
	Redis   *redis.Client
}

func (h *PartiesHandler) Register(r *chi.Mux) {
	r.Get("/parties/{id}", h.get)
	r.Post("/parties/{id}/balance", h.adjustBalance)
	r.Get("/parties/{id}/transactions", h.transactions)
}

func (h *PartiesHandler) get(w http.ResponseWriter, r *http.Request) {
	partyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Parties.Get(ctx, partyID)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type adjustReq struct {
	DeltaCents int64 `json:"delta_cents"`
}

// adjustBalance is the top-up/withdraw endpoint. Positive delta deposits,
// negative withdraws; withdrawing past zero is rejected.
func (h *PartiesHandler) adjustBalance(w http.ResponseWriter, r *http.Request) {
	partyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	var req adjustReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeltaCents == 0 {
		writeError(w, http.StatusBadRequest, "non-zero delta_cents required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	balance, err := h.Parties.AdjustBalance(ctx, partyID, req.DeltaCents)
	if errors.Is(err, market.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	var funds *market.InsufficientFundsError
	if errors.As(err, &funds) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"ok": false, "error_kind": market.KindInsufficientFunds, "detail": funds.Error(),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// keep the balance read model fresh
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyBalance, partyID), balance, redisx.TTLBalanceCache).Err()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "balance_cents": balance})
}

func (h *PartiesHandler) transactions(w http.ResponseWriter, r *http.Request) {
	partyID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	txns, err := h.Store.TransactionsForParty(ctx, partyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(txns), "transactions": txns})
}
