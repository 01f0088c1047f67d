package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresty/go-market-checkout/internal/market"
)

type fakeCheckout struct {
	res *market.CheckoutResult
	err error

	gotBuyer  int64
	gotCoupon string
}

func (f *fakeCheckout) Run(ctx context.Context, buyerID int64, couponCode string) (*market.CheckoutResult, error) {
	f.gotBuyer = buyerID
	f.gotCoupon = couponCode
	return f.res, f.err
}

// deadRedis returns a client whose every command fails fast. The handler
// must degrade (no coupon, no caching) rather than refuse checkouts.
func deadRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
}

func newCheckoutServer(svc CheckoutService) *chi.Mux {
	r := chi.NewRouter()
	h := &CheckoutHandler{Service: svc, Redis: deadRedis(), Name: "test"}
	h.Register(r)
	return r
}

func postCheckout(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutSuccess(t *testing.T) {
	svc := &fakeCheckout{res: &market.CheckoutResult{
		OrderID:       42,
		SubtotalCents: 5000,
		DiscountCents: 500,
		TotalCents:    4500,
	}}
	rec := postCheckout(t, newCheckoutServer(svc), `{"buyer_id": 7}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp checkoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.EqualValues(t, 42, resp.OrderID)
	assert.EqualValues(t, 4500, resp.TotalCents)
	assert.Empty(t, resp.Warning)

	assert.EqualValues(t, 7, svc.gotBuyer)
	assert.Empty(t, svc.gotCoupon, "dead cache must not block checkout, only skip the coupon")
}

func TestCheckoutCouponDroppedWarning(t *testing.T) {
	svc := &fakeCheckout{res: &market.CheckoutResult{OrderID: 1, TotalCents: 100, CouponDropped: true}}
	rec := postCheckout(t, newCheckoutServer(svc), `{"buyer_id": 7}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp checkoutResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.Warning)
}

func TestCheckoutBadRequest(t *testing.T) {
	r := newCheckoutServer(&fakeCheckout{})
	assert.Equal(t, http.StatusBadRequest, postCheckout(t, r, `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postCheckout(t, r, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, postCheckout(t, r, `{"buyer_id": -3}`).Code)
}

func TestCheckoutUnknownBuyer(t *testing.T) {
	rec := postCheckout(t, newCheckoutServer(&fakeCheckout{err: market.ErrUnknownBuyer}), `{"buyer_id": 99}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   market.ErrorKind
		retryable  bool
	}{
		{"empty cart", market.ErrEmptyCart, http.StatusBadRequest, market.KindEmptyCart, false},
		{"insufficient funds", &market.InsufficientFundsError{BalanceCents: 1, TotalCents: 2}, http.StatusConflict, market.KindInsufficientFunds, false},
		{"lock timeout", market.ErrLockTimeout, http.StatusServiceUnavailable, market.KindLockTimeout, true},
		{"negative stock", &market.NegativeStockError{ProductID: 1, SellerID: 1, Quantity: 1}, http.StatusInternalServerError, market.KindNegativeStock, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postCheckout(t, newCheckoutServer(&fakeCheckout{err: tc.err}), `{"buyer_id": 7}`)
			require.Equal(t, tc.wantStatus, rec.Code)

			var resp checkoutErrResp
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.OK)
			assert.Equal(t, tc.wantKind, resp.ErrorKind)
			assert.Equal(t, tc.retryable, resp.Retryable)
		})
	}
}

func TestCheckoutStockErrorCarriesShortages(t *testing.T) {
	err := &market.InsufficientStockError{Shortages: []market.StockShortage{
		{ProductID: 1, SellerID: 2, Requested: 5, OnHand: 1},
		{ProductID: 3, SellerID: 2, Requested: 2, OnHand: 0},
	}}
	rec := postCheckout(t, newCheckoutServer(&fakeCheckout{err: err}), `{"buyer_id": 7}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp checkoutErrResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, market.KindInsufficientStock, resp.ErrorKind)
	require.Len(t, resp.Shortages, 2)
	assert.EqualValues(t, 5, resp.Shortages[0].Requested)
}
