package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/account"
	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/fulfillment"
	"github.com/imrishuroy/sneakerstore/internal/identity"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/lifecycle"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/payment"
	"github.com/imrishuroy/sneakerstore/internal/testkit"
)

type fakeCarts struct {
	Carts
	mu       sync.Mutex
	state    cart.State
	added    []string
	cleared  []string
	contacts []string
}

func (f *fakeCarts) Get(ctx context.Context, cartID string) (cart.View, error) {
	return cart.NewView(cartID, f.state), nil
}

func (f *fakeCarts) State(ctx context.Context, cartID string) (cart.State, error) {
	return f.state, nil
}

func (f *fakeCarts) Add(ctx context.Context, cartID, productID, size string, qty int) (cart.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, cartID+"/"+productID+"/"+size)
	f.state.Items = append(f.state.Items, cart.Item{ProductID: productID, Size: size, Quantity: qty, PriceCents: 5000})
	return cart.NewView(cartID, f.state), nil
}

func (f *fakeCarts) ApplyDiscount(ctx context.Context, cartID, code, userID string) (cart.View, error) {
	return cart.View{}, &discount.InvalidError{Reason: discount.ReasonExpired}
}

func (f *fakeCarts) Clear(ctx context.Context, cartID string) error {
	f.cleared = append(f.cleared, cartID)
	return nil
}

func (f *fakeCarts) SetContact(ctx context.Context, cartID, userID, email string) error {
	f.contacts = append(f.contacts, cartID+"/"+email)
	return nil
}

type fakeAuth struct {
	users map[string]identity.Identity
}

func (f fakeAuth) Authenticate(ctx context.Context, creds identity.Credentials) (identity.Identity, error) {
	token := creds.BearerToken
	if token == "" {
		token = creds.AccessToken
	}
	if id, ok := f.users[token]; ok {
		return id, nil
	}
	return identity.Identity{}, identity.ErrSessionExpired
}

type fakeProfiles struct {
	Profiles
	admins map[string]bool
}

func (f fakeProfiles) IsAdmin(ctx context.Context, id string) (bool, error) {
	return f.admins[id], nil
}

func (f fakeProfiles) Ensure(ctx context.Context, id, email string) (*account.Profile, error) {
	return &account.Profile{ID: id, Email: email}, nil
}

type fakeBuilder struct {
	req checkout.Request
	res *checkout.Result
	err error
}

func (f *fakeBuilder) Build(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	f.req = req
	return f.res, f.err
}

type fakeCompleter struct {
	mu       sync.Mutex
	complete int
	refunds  int
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, sess *payment.Session) (*fulfillment.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.complete++
	if f.err != nil {
		return nil, f.err
	}
	return &fulfillment.Result{Order: &orders.Order{OrderID: "o-1", SessionID: sess.ID}, Created: true}, nil
}

func (f *fakeCompleter) Confirm(ctx context.Context, sessionID string) (*fulfillment.Result, error) {
	return f.Complete(ctx, &payment.Session{ID: sessionID, Paid: true})
}

func (f *fakeCompleter) RecordRefund(ctx context.Context, ev payment.Event) error {
	f.refunds++
	return nil
}

type fakeWebhooks struct {
	events map[string]payment.Event
}

func (f fakeWebhooks) ParseWebhook(payload []byte, signature string) (payment.Event, error) {
	if signature != "valid" {
		return payment.Event{}, payment.ErrInvalidSignature
	}
	return f.events[string(payload)], nil
}

type fakeLifecycle struct {
	Lifecycle
	err error
}

func (f fakeLifecycle) SetStatus(ctx context.Context, orderID, target string) (*lifecycle.Outcome, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &lifecycle.Outcome{Order: &orders.Order{OrderID: orderID, Status: target}}, nil
}

type fakeOrders struct {
	Orders
	byID map[string]orders.Order
}

func (f fakeOrders) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return nil, orders.ErrNotFound
	}
	return &o, nil
}

type env struct {
	router    *gin.Engine
	carts     *fakeCarts
	builder   *fakeBuilder
	completer *fakeCompleter
	dynamo    *testkit.Dynamo
	deps      Deps
}

func newEnv(t *testing.T, mutate ...func(*Deps)) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		carts:     &fakeCarts{},
		builder:   &fakeBuilder{res: &checkout.Result{SessionID: "cs_1", URL: "https://pay.example/cs_1"}},
		completer: &fakeCompleter{},
		dynamo:    testkit.NewDynamo(),
	}
	e.deps = Deps{
		Carts:     e.carts,
		Checkout:  e.builder,
		Completer: e.completer,
		Webhooks: fakeWebhooks{events: map[string]payment.Event{
			"paid":     {ID: "evt_1", Type: payment.EventCheckoutCompleted, Session: &payment.Session{ID: "cs_1", Paid: true}},
			"refunded": {ID: "evt_2", Type: payment.EventChargeRefunded, PaymentIntentID: "pi_1"},
		}},
		Events: idempotency.NewStore(e.dynamo, "idempotency", time.Hour),
		Auth: fakeAuth{users: map[string]identity.Identity{
			"user-token":  {UserID: "u1", Email: "ana@example.com"},
			"admin-token": {UserID: "admin", Email: "ops@example.com"},
		}},
		Profiles:  fakeProfiles{admins: map[string]bool{"admin": true}},
		Lifecycle: fakeLifecycle{},
		Orders: fakeOrders{byID: map[string]orders.Order{
			"o-1": {OrderID: "o-1", UserID: "u1", Status: orders.StatusPaid},
			"o-2": {OrderID: "o-2", UserID: "u2", Status: orders.StatusPaid},
		}},
		Logger: zap.NewNop(),
	}
	for _, m := range mutate {
		m(&e.deps)
	}
	e.router = gin.New()
	Register(e.router, e.deps)
	return e
}

func (e *env) do(method, path, body string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range w.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestCart_IssuesCookieForNewShopper(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/cart/items", `{"product_id":"p1","size":"42","quantity":2}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ck := responseCookie(w, cookieCart)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, []string{ck.Value + "/p1/42"}, e.carts.added)
	assert.EqualValues(t, 2, decode(t, w)["count"])

	// an existing cookie is reused
	w = e.do(http.MethodGet, "/api/cart", "", nil, &http.Cookie{Name: cookieCart, Value: "c-9"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, responseCookie(w, cookieCart))
	assert.Equal(t, "c-9", decode(t, w)["cart_id"])
}

func TestCart_ValidationAndDiscountErrors(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/cart/items", `{"product_id":"p1","size":"XL","quantity":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decode(t, w)["error"])

	w = e.do(http.MethodPost, "/api/cart/discount", `{"code":"OLD"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "invalid_discount", body["error"])
	assert.Equal(t, "This discount code has expired", body["detail"])
}

func TestCheckout_UsesCartItemsAndDiscount(t *testing.T) {
	e := newEnv(t)
	e.carts.state = cart.State{
		Items:    []cart.Item{{ProductID: "p1", Size: "42", Quantity: 2}},
		Discount: &discount.Applied{Code: "TEN"},
	}
	e.builder.res.Identity = identity.Identity{Email: "guest@example.com", Guest: true}

	w := e.do(http.MethodPost, "/api/checkout/session", `{"guest_email":"guest@example.com"}`, nil,
		&http.Cookie{Name: cookieCart, Value: "c-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "https://pay.example/cs_1", decode(t, w)["url"])
	assert.Equal(t, []checkout.Item{{ProductID: "p1", Quantity: 2, Size: "42"}}, e.builder.req.Items)
	assert.Equal(t, "TEN", e.builder.req.DiscountCode)
	assert.Equal(t, "c-1", e.builder.req.CartID)
	assert.Equal(t, "guest@example.com", e.builder.req.Credentials.GuestEmail)
	assert.Equal(t, []string{"c-1/guest@example.com"}, e.carts.contacts)
}

func TestCheckout_RefreshedSessionSetsCookies(t *testing.T) {
	e := newEnv(t)
	e.builder.res.Identity = identity.Identity{
		UserID:    "u1",
		Email:     "ana@example.com",
		Refreshed: &identity.Tokens{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600},
	}

	w := e.do(http.MethodPost, "/api/checkout/session", `{"items":[{"product_id":"p1","size":"42","quantity":1}]}`, nil,
		&http.Cookie{Name: cookieRefresh, Value: "old-refresh"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "old-refresh", e.builder.req.Credentials.RefreshToken)
	require.NotNil(t, responseCookie(w, cookieAccess))
	assert.Equal(t, "new-access", responseCookie(w, cookieAccess).Value)
	assert.Equal(t, "new-refresh", responseCookie(w, cookieRefresh).Value)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		want string
	}{
		{"stock", &checkout.StockConflictError{Items: []checkout.Conflict{{ProductID: "p1", Size: "42", Requested: 3, Available: 1}}}, http.StatusConflict, "insufficient_stock"},
		{"registered", identity.ErrEmailRegistered, http.StatusBadRequest, "email_registered"},
		{"no identity", identity.ErrIdentityRequired, http.StatusBadRequest, "email_required"},
		{"expired", identity.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{"provider", &checkout.ProviderError{Err: assert.AnError}, http.StatusInternalServerError, "payment_provider_error"},
		{"empty", checkout.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.builder.err = tc.err

			w := e.do(http.MethodPost, "/api/checkout/session", `{}`, nil)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.want, decode(t, w)["error"])
		})
	}
}

func TestCheckout_StockConflictListsItems(t *testing.T) {
	e := newEnv(t)
	e.builder.err = &checkout.StockConflictError{Items: []checkout.Conflict{
		{ProductID: "p1", Size: "42", Requested: 3, Available: 1},
		{ProductID: "p2", Size: "40", Requested: 1, Available: 0},
	}}

	w := e.do(http.MethodPost, "/api/checkout/session", `{}`, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	items := decode(t, w)["items"].([]any)
	assert.Len(t, items, 2)
}

func TestWebhook_EventHandledOnce(t *testing.T) {
	e := newEnv(t)
	headers := map[string]string{"Stripe-Signature": "valid"}

	first := e.do(http.MethodPost, "/api/webhooks/stripe", "paid", headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "o-1", decode(t, first)["order_id"])

	second := e.do(http.MethodPost, "/api/webhooks/stripe", "paid", headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, e.completer.complete)

	w := e.do(http.MethodPost, "/api/webhooks/stripe", "refunded", headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, e.completer.refunds)
}

func TestWebhook_FailureAllowsRetry(t *testing.T) {
	e := newEnv(t)
	e.completer.err = assert.AnError
	headers := map[string]string{"Stripe-Signature": "valid"}

	w := e.do(http.MethodPost, "/api/webhooks/stripe", "paid", headers)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	e.completer.err = nil
	w = e.do(http.MethodPost, "/api/webhooks/stripe", "paid", headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, e.completer.complete)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/webhooks/stripe", "paid", map[string]string{"Stripe-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, e.completer.complete)
	assert.Equal(t, 0, e.dynamo.Len("idempotency"))
}

func TestConfirm(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/checkout/confirm", `{"session_id":"cs_9"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	order := decode(t, w)["order"].(map[string]any)
	assert.Equal(t, "o-1", order["id"])

	w = e.do(http.MethodPost, "/api/checkout/confirm", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccount_RequiresSession(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/account", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodGet, "/api/account", "", map[string]string{"Authorization": "Bearer user-token"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", decode(t, w)["email"])
}

func TestAccount_OrderOwnership(t *testing.T) {
	e := newEnv(t)
	auth := map[string]string{"Authorization": "Bearer user-token"}

	w := e.do(http.MethodGet, "/api/account/orders/o-1", "", auth)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodGet, "/api/account/orders/o-2", "", auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmin_RequiresAdmin(t *testing.T) {
	e := newEnv(t)
	body := `{"status":"shipped"}`

	w := e.do(http.MethodPatch, "/api/admin/orders/o-1/status", body, map[string]string{"Authorization": "Bearer user-token"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPatch, "/api/admin/orders/o-1/status", body, map[string]string{"Authorization": "Bearer admin-token"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "shipped", decode(t, w)["order"].(map[string]any)["status"])
}

func TestAdmin_StatusErrors(t *testing.T) {
	auth := map[string]string{"Authorization": "Bearer admin-token"}

	e := newEnv(t, func(d *Deps) {
		d.Lifecycle = fakeLifecycle{err: &lifecycle.TransitionError{From: orders.StatusCancelled, To: orders.StatusShipped}}
	})
	w := e.do(http.MethodPatch, "/api/admin/orders/o-1/status", `{"status":"shipped"}`, auth)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode(t, w)["error"])

	w = e.do(http.MethodPatch, "/api/admin/orders/o-1/status", `{"status":"lost"}`, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_ClearsCartAndCookies(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/auth/logout", "", nil, &http.Cookie{Name: cookieCart, Value: "c-5"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c-5"}, e.carts.cleared)
	ck := responseCookie(w, cookieAccess)
	require.NotNil(t, ck)
	assert.Equal(t, "", ck.Value)
}
