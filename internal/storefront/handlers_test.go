package storefront_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/express-checkout/internal/catalog"
	"github.com/noah-isme/express-checkout/internal/events"
	"github.com/noah-isme/express-checkout/internal/money"
	"github.com/noah-isme/express-checkout/internal/obs"
	"github.com/noah-isme/express-checkout/internal/paylater"
	"github.com/noah-isme/express-checkout/internal/payment"
	"github.com/noah-isme/express-checkout/internal/pricing"
	"github.com/noah-isme/express-checkout/internal/receipt"
	"github.com/noah-isme/express-checkout/internal/shipping"
	"github.com/noah-isme/express-checkout/internal/storefront"
)

type harness struct {
	t        *testing.T
	server   http.Handler
	store    *receipt.RedisStore
	sessions *storefront.Sessions
	approve  atomic.Bool
	device   atomic.Bool

	mu     sync.Mutex
	topics []string
}

type deviceFlag struct{ h *harness }

func (d deviceFlag) CanMakePayments() bool { return d.h.device.Load() }

func (d deviceFlag) CanMakePaymentsUsingNetworks(networks []payment.Network) bool {
	return d.h.device.Load() && len(networks) > 0
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t}
	h.approve.Store(true)
	h.device.Store(true)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h.store = receipt.NewRedisStore(client, time.Hour)

	capability := deviceFlag{h: h}
	pl, err := paylater.NewService(paylater.Config{Capability: capability})
	require.NoError(t, err)

	orch := payment.NewOrchestrator(payment.DefaultMerchant(), payment.AuthorizerFunc(
		func(context.Context, payment.Request) (bool, error) { return h.approve.Load(), nil }))
	orch.PayLater = pl

	bus := &events.Bus{Notifiers: []events.Notifier{events.NotifierFunc(func(_ context.Context, ev events.Event) error {
		h.mu.Lock()
		h.topics = append(h.topics, ev.Topic)
		h.mu.Unlock()
		return nil
	})}}

	h.sessions = storefront.NewSessions(storefront.SessionConfig{
		Tax:      pricing.DefaultCalculator(),
		Payments: orch,
		Shipping: shipping.Demo(),
		Receipts: storefront.ReceiptPublisher{Store: h.store, Events: bus, Logger: zerolog.Nop()},
		Events:   bus,
		Codes:    receipt.NewCodeGenerator("", nil),
	}, 4, 0)
	t.Cleanup(h.sessions.Close)

	handler := &storefront.Handler{
		Sessions:   h.sessions,
		Catalog:    catalog.Demo(),
		PayLater:   pl,
		Capability: capability,
		Networks:   payment.DefaultMerchant().Networks,
		Preview:    orch,
		Receipts:   h.store,
		Formatter:  money.DefaultFormatter(),
		Logger:     zerolog.Nop(),
	}
	r := chi.NewRouter()
	r.Mount("/api/v1", handler.Router())
	h.server = r
	return h
}

func (h *harness) do(method, path, session string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if session != "" {
		req.Header.Set(obs.SessionHeader, session)
	}
	rr := httptest.NewRecorder()
	h.server.ServeHTTP(rr, req)
	return rr
}

func (h *harness) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.topics...)
}

func data(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Data
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body.Error.Code
}

func productID(t *testing.T, name string) string {
	t.Helper()
	for _, p := range catalog.Demo().List() {
		if p.Name == name {
			return p.ID.String()
		}
	}
	t.Fatalf("no demo product %q", name)
	return ""
}

func (h *harness) waitOutcome(session, want string) map[string]any {
	h.t.Helper()
	var view map[string]any
	require.Eventually(h.t, func() bool {
		rr := h.do(http.MethodGet, "/api/v1/checkout", session, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		view = data(h.t, rr)
		return view["outcome"] == want
	}, 2*time.Second, 5*time.Millisecond)
	return view
}

func TestListProducts(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, storefront.DefaultSessionID, rr.Header().Get(obs.SessionHeader))

	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 6)
	require.Equal(t, "Nike Dunk Olive", body.Data[0]["name"])
	require.Equal(t, "$110.00", body.Data[0]["formattedPrice"])
	require.Equal(t, "From $27.50/mo. for 4 months", body.Data[0]["payLater"])
}

func TestGetProduct(t *testing.T) {
	h := newHarness(t)
	id := productID(t, "Nike Air Jordan")

	rr := h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": id})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(http.MethodGet, "/api/v1/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	product := data(t, rr)
	require.Equal(t, "Pay $44.50/mo. for 4 months with Pay Later", product["payLater"])
	require.EqualValues(t, 1, product["inCartQuantity"])

	rr = h.do(http.MethodGet, "/api/v1/products/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	rr = h.do(http.MethodGet, "/api/v1/products/00000000-0000-0000-0000-000000000000", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", errorCode(t, rr))
}

func TestCartMutations(t *testing.T) {
	h := newHarness(t)
	black := productID(t, "Nike Dunk Black")

	rr := h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": black})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": black})
	require.Equal(t, http.StatusOK, rr.Code)

	view := data(t, rr)
	items := view["items"].([]any)
	require.Len(t, items, 1)
	line := items[0].(map[string]any)
	require.EqualValues(t, 2, line["quantity"])
	require.Equal(t, "$188.00", line["formattedSubtotal"])
	require.EqualValues(t, 2, view["units"])

	totals := view["totals"].(map[string]any)
	require.Equal(t, "$188.00", totals["formattedSubtotal"])
	require.Equal(t, "$17.86", totals["formattedTax"])
	require.Equal(t, "$205.86", totals["formattedTotal"])
	require.Equal(t, "Pay in 4 installments of $51.47", view["payLater"])

	itemID := line["id"].(string)
	rr = h.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, "", map[string]int{"quantity": 3})
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 3, data(t, rr)["units"])

	rr = h.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, "", map[string]int{"quantity": 0})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, data(t, rr)["items"])

	rr = h.do(http.MethodPatch, "/api/v1/cart/items/"+itemID, "", map[string]int{"quantity": 1})
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(http.MethodDelete, "/api/v1/cart/items/"+itemID, "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": black})
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = h.do(http.MethodDelete, "/api/v1/cart", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "$0.00", data(t, rr)["totals"].(map[string]any)["formattedTotal"])
}

func TestCartValidation(t *testing.T) {
	h := newHarness(t)

	rr := h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, rr))

	rr = h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": "00000000-0000-0000-0000-000000000000"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodPatch, "/api/v1/cart/items/00000000-0000-0000-0000-000000000000", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "VALIDATION_FAILED", errorCode(t, rr))

	rr = h.do(http.MethodGet, "/api/v1/cart", "not valid!", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t)
	black := productID(t, "Nike Dunk Black")

	rr := h.do(http.MethodPost, "/api/v1/cart/items", "alice", map[string]string{"productId": black})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = h.do(http.MethodGet, "/api/v1/cart", "bob", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, data(t, rr)["items"])
	require.Equal(t, 2, h.sessions.Len())

	for _, id := range []string{"carol", "dave"} {
		require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/cart", id, nil).Code)
	}
	rr = h.do(http.MethodGet, "/api/v1/cart", "erin", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "SESSION_LIMIT", errorCode(t, rr))
}

func TestCheckoutSuccess(t *testing.T) {
	h := newHarness(t)
	black := productID(t, "Nike Dunk Black")
	h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": black})
	h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": black})

	rr := h.do(http.MethodGet, "/api/v1/checkout", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view := data(t, rr)
	require.Equal(t, "none", view["outcome"])
	require.Equal(t, true, view["paymentAvailable"])
	request := view["request"].(map[string]any)
	require.Len(t, request["summaryItems"], 3)
	require.NotEmpty(t, request["requiredBillingFields"], "205.86 is eligible for pay later")

	rr = h.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Equal(t, true, data(t, rr)["started"])

	view = h.waitOutcome("", "succeeded")
	require.Equal(t, false, view["processing"])
	rec := view["receipt"].(map[string]any)
	require.Equal(t, "$205.86", rec["rows"].([]any)[3].(map[string]any)["value"])
	require.Equal(t, "Free", rec["rows"].([]any)[2].(map[string]any)["value"])
	require.Regexp(t, `^SWIFT-\d{6}$`, rec["confirmationCode"])
	require.EqualValues(t, 2, rec["units"])

	rr = h.do(http.MethodGet, "/api/v1/cart", "", nil)
	require.Empty(t, data(t, rr)["items"])

	id := rec["id"].(string)
	code := rec["confirmationCode"].(string)

	rr = h.do(http.MethodGet, "/api/v1/receipts/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, code, data(t, rr)["confirmationCode"])

	rr = h.do(http.MethodGet, "/api/v1/receipts?code="+code, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, id, data(t, rr)["id"])

	rr = h.do(http.MethodGet, "/api/v1/receipts/"+id+"/document", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Confirmation #: "+code)
	require.Contains(t, rr.Body.String(), "Thank you for your purchase!")

	rr = h.do(http.MethodGet, "/api/v1/receipts/"+id+"/document?format=json", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	require.Eventually(t, func() bool {
		seen := h.seen()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{events.TopicCheckoutStarted, events.TopicReceiptIssued, events.TopicPaymentSucceeded}, h.seen())

	rr = h.do(http.MethodDelete, "/api/v1/receipts/"+id, "", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Nil(t, data(t, h.do(http.MethodGet, "/api/v1/checkout", "", nil))["receipt"])
	rr = h.do(http.MethodGet, "/api/v1/receipts/"+id, "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(http.MethodDelete, "/api/v1/receipts/"+id, "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, h.seen(), events.TopicReceiptDismissed)
}

func TestCheckoutDeclinedKeepsCart(t *testing.T) {
	h := newHarness(t)
	h.approve.Store(false)
	h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": productID(t, "Nike Dunk Blue")})

	rr := h.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	view := h.waitOutcome("", "failed")
	require.Nil(t, view["receipt"])
	rr = h.do(http.MethodGet, "/api/v1/cart", "", nil)
	require.Len(t, data(t, rr)["items"], 1)

	h.approve.Store(true)
	rr = h.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, true, data(t, rr)["started"])
	h.waitOutcome("", "succeeded")
}

func TestCheckoutEmptyCartDoesNotStart(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	payload := data(t, rr)
	require.Equal(t, false, payload["started"])
	require.Equal(t, "none", payload["checkout"].(map[string]any)["outcome"])
}

func TestCheckoutUnavailable(t *testing.T) {
	h := newHarness(t)
	h.device.Store(false)
	h.do(http.MethodPost, "/api/v1/cart/items", "", map[string]string{"productId": productID(t, "Nike Dunk Blue")})

	rr := h.do(http.MethodPost, "/api/v1/checkout", "", nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "PAYMENT_UNAVAILABLE", errorCode(t, rr))
}

func TestPayLaterQuote(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/v1/paylater?amount=110", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	quote := data(t, rr)
	require.Equal(t, true, quote["eligible"])
	require.Equal(t, "Pay $27.50/mo. for 4 months with Pay Later", quote["detail"])

	rr = h.do(http.MethodGet, "/api/v1/paylater?amount=1000.01", "", nil)
	require.Equal(t, false, data(t, rr)["eligible"])

	rr = h.do(http.MethodGet, "/api/v1/paylater?amount=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPayLaterQuoteRejectsHugeExponent(t *testing.T) {
	h := newHarness(t)
	for _, amount := range []string{"1e20000000", "1e-20000000", "-1", "0.001"} {
		done := make(chan int, 1)
		go func() { done <- h.do(http.MethodGet, "/api/v1/paylater?amount="+amount, "", nil).Code }()
		select {
		case code := <-done:
			require.Equal(t, http.StatusBadRequest, code, amount)
		case <-time.After(2 * time.Second):
			t.Fatalf("quote for %s did not return", amount)
		}
	}
}

func TestReceiptsAreScopedToSession(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/api/v1/cart/items", "alice", map[string]string{"productId": productID(t, "Nike Dunk Blue")})
	rr := h.do(http.MethodPost, "/api/v1/checkout", "alice", nil)
	require.Equal(t, true, data(t, rr)["started"])
	rec := h.waitOutcome("alice", "succeeded")["receipt"].(map[string]any)
	id := rec["id"].(string)
	code := rec["confirmationCode"].(string)

	for _, path := range []string{
		"/api/v1/receipts/" + id,
		"/api/v1/receipts?code=" + code,
		"/api/v1/receipts/" + id + "/document",
		"/api/v1/receipts/" + id + "/document?format=json",
	} {
		rr = h.do(http.MethodGet, path, "mallory", nil)
		require.Equal(t, http.StatusNotFound, rr.Code, path)
		require.Equal(t, "NOT_FOUND", errorCode(t, rr), path)
	}
	rr = h.do(http.MethodDelete, "/api/v1/receipts/"+id, "mallory", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(http.MethodGet, "/api/v1/receipts?code="+code, "alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, id, data(t, rr)["id"])
	rr = h.do(http.MethodDelete, "/api/v1/receipts/"+id, "alice", nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestUnknownReceipt(t *testing.T) {
	h := newHarness(t)
	rr := h.do(http.MethodGet, "/api/v1/receipts/00000000-0000-0000-0000-000000000000", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(http.MethodGet, "/api/v1/receipts?code=SWIFT-000000", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(http.MethodGet, "/api/v1/receipts", "", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
