package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/account"
	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/fulfillment"
	"github.com/imrishuroy/sneakerstore/internal/identity"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/lifecycle"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/payment"
	"github.com/imrishuroy/sneakerstore/internal/subscription"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

const (
	cookieCart    = "cart_id"
	cookieAccess  = "access_token"
	cookieRefresh = "refresh_token"

	cartCookieAge = 30 * 24 * 60 * 60

	ctxIdentity = "identity"
)

type Carts interface {
	Get(ctx context.Context, cartID string) (cart.View, error)
	State(ctx context.Context, cartID string) (cart.State, error)
	Add(ctx context.Context, cartID, productID, size string, qty int) (cart.View, error)
	Remove(ctx context.Context, cartID, productID, size string) (cart.View, error)
	SetQuantity(ctx context.Context, cartID, productID, size string, qty int) (cart.View, error)
	ApplyDiscount(ctx context.Context, cartID, code, userID string) (cart.View, error)
	RemoveDiscount(ctx context.Context, cartID string) (cart.View, error)
	ToggleVisibility(ctx context.Context, cartID string) (cart.View, error)
	Clear(ctx context.Context, cartID string) error
	SetContact(ctx context.Context, cartID, userID, email string) error
}

type Catalog interface {
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, p catalog.Product) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, p catalog.Product) (*catalog.Product, error)
	DeactivateProduct(ctx context.Context, id string) error
	SetStock(ctx context.Context, productID, size string, quantity int) error
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	CreateCategory(ctx context.Context, name, slug string) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, id string) error
}

type DiscountValidator interface {
	Validate(ctx context.Context, code string, subtotal money.Cents, userID string) (discount.Result, error)
}

type DiscountAdmin interface {
	Create(ctx context.Context, c discount.Code) (*discount.Code, error)
	List(ctx context.Context) ([]discount.Code, error)
	SetActive(ctx context.Context, id string, active bool) (*discount.Code, error)
}

type CheckoutBuilder interface {
	Build(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type Completer interface {
	Complete(ctx context.Context, sess *payment.Session) (*fulfillment.Result, error)
	Confirm(ctx context.Context, sessionID string) (*fulfillment.Result, error)
	RecordRefund(ctx context.Context, ev payment.Event) error
}

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payment.Event, error)
}

// EventLog dedupes provider webhook deliveries.
type EventLog interface {
	Acquire(ctx context.Context, key, ref string, lease time.Duration) (*idempotency.Record, idempotency.Outcome, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type Lifecycle interface {
	Cancel(ctx context.Context, orderID, userID, reason string) (*lifecycle.Outcome, error)
	RequestReturn(ctx context.Context, orderID, userID, reason string) (*lifecycle.Outcome, error)
	ApproveReturn(ctx context.Context, orderID string) (*lifecycle.Outcome, error)
	SetStatus(ctx context.Context, orderID, target string) (*lifecycle.Outcome, error)
}

type Orders interface {
	account.OrderReader
	List(ctx context.Context, status string) ([]orders.Order, error)
}

type Profiles interface {
	Get(ctx context.Context, id string) (*account.Profile, error)
	Ensure(ctx context.Context, id, email string) (*account.Profile, error)
	Update(ctx context.Context, id string, u account.Update) (*account.Profile, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
}

type Subscriptions interface {
	Subscribe(ctx context.Context, email string) (bool, error)
	Unsubscribe(ctx context.Context, email string) error
	JoinVIP(ctx context.Context, email string) (*subscription.VIPResult, error)
}

type Reminders interface {
	Run(ctx context.Context) (int, error)
}

// Deps groups everything the routes need.
type Deps struct {
	Carts         Carts
	Catalog       Catalog
	Discounts     DiscountValidator
	DiscountAdmin DiscountAdmin
	Checkout      CheckoutBuilder
	Completer     Completer
	Webhooks      WebhookParser
	Events        EventLog
	Lifecycle     Lifecycle
	Orders        Orders
	Profiles      Profiles
	Auth          Authenticator
	Subscriptions Subscriptions
	Reminders     Reminders

	CookieDomain string
	CookieSecure bool
	EventLease   time.Duration
	Logger       *zap.Logger
}

type api struct {
	Deps
	v *validatorv10.Validate
}

// Register mounts every storefront route on r.
func Register(r *gin.Engine, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.EventLease == 0 {
		deps.EventLease = 30 * time.Second
	}
	a := &api{Deps: deps, v: validation.New()}

	g := r.Group("/api")

	g.GET("/products", a.listProducts)
	g.GET("/products/:id", a.getProduct)
	g.GET("/categories", a.listCategories)

	c := g.Group("/cart", a.withCart)
	c.GET("", a.getCart)
	c.POST("/items", a.addCartItem)
	c.PATCH("/items", a.setCartQuantity)
	c.DELETE("/items", a.removeCartItem)
	c.POST("/discount", a.applyCartDiscount)
	c.DELETE("/discount", a.removeCartDiscount)
	c.POST("/visibility", a.toggleCart)
	c.DELETE("", a.clearCart)

	g.POST("/discounts/validate", a.withCart, a.validateDiscount)

	g.POST("/checkout/session", a.withCart, a.createCheckoutSession)
	g.POST("/checkout/confirm", a.confirmCheckout)
	g.POST("/webhooks/stripe", a.stripeWebhook)

	g.POST("/newsletter/subscribe", a.subscribe)
	g.POST("/newsletter/unsubscribe", a.unsubscribe)
	g.POST("/vip/subscribe", a.joinVIP)

	g.POST("/auth/logout", a.withCart, a.logout)

	acct := g.Group("/account", a.requireUser)
	acct.GET("", a.getAccount)
	acct.PUT("", a.updateAccount)
	acct.GET("/orders", a.listMyOrders)
	acct.GET("/orders/:id", a.getMyOrder)
	acct.POST("/orders/:id/cancel", a.cancelMyOrder)
	acct.POST("/orders/:id/return", a.returnMyOrder)

	adm := g.Group("/admin", a.requireUser, a.requireAdmin)
	adm.POST("/products", a.createProduct)
	adm.PUT("/products/:id", a.updateProduct)
	adm.DELETE("/products/:id", a.deactivateProduct)
	adm.PUT("/products/:id/stock", a.setStock)
	adm.POST("/categories", a.createCategory)
	adm.DELETE("/categories/:id", a.deleteCategory)
	adm.GET("/orders", a.listOrders)
	adm.GET("/orders/:id", a.getOrder)
	adm.PATCH("/orders/:id/status", a.setOrderStatus)
	adm.POST("/orders/:id/return/approve", a.approveReturn)
	adm.GET("/discounts", a.listDiscounts)
	adm.POST("/discounts", a.createDiscount)
	adm.PATCH("/discounts/:id", a.setDiscountActive)
	adm.POST("/carts/reminders", a.runReminders)
}

// credentials collects whatever the request carries about its caller.
func credentials(c *gin.Context) identity.Credentials {
	creds := identity.Credentials{}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		creds.BearerToken = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	creds.AccessToken, _ = c.Cookie(cookieAccess)
	creds.RefreshToken, _ = c.Cookie(cookieRefresh)
	return creds
}

func (a *api) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", a.CookieDomain, a.CookieSecure, true)
}

// storeTokens writes renewed session cookies after a refresh.
func (a *api) storeTokens(c *gin.Context, id identity.Identity) {
	if id.Refreshed == nil {
		return
	}
	maxAge := id.Refreshed.ExpiresIn
	if maxAge <= 0 {
		maxAge = 3600
	}
	a.setCookie(c, cookieAccess, id.Refreshed.AccessToken, maxAge)
	a.setCookie(c, cookieRefresh, id.Refreshed.RefreshToken, cartCookieAge)
}

// withCart makes sure the request has a cart id, issuing a cookie for new shoppers.
func (a *api) withCart(c *gin.Context) {
	id, err := c.Cookie(cookieCart)
	if err != nil || id == "" {
		id = uuid.NewString()
		a.setCookie(c, cookieCart, id, cartCookieAge)
	}
	c.Set(cookieCart, id)
	c.Next()
}

func cartID(c *gin.Context) string { return c.GetString(cookieCart) }

// optionalUser resolves a signed-in caller when credentials are present.
func (a *api) optionalUser(c *gin.Context) identity.Identity {
	if v, ok := c.Get(ctxIdentity); ok {
		return v.(identity.Identity)
	}
	creds := credentials(c)
	if creds.BearerToken == "" && creds.AccessToken == "" && creds.RefreshToken == "" {
		return identity.Identity{}
	}
	id, err := a.Auth.Authenticate(c.Request.Context(), creds)
	if err != nil {
		return identity.Identity{}
	}
	a.storeTokens(c, id)
	c.Set(ctxIdentity, id)
	return id
}

func (a *api) requireUser(c *gin.Context) {
	id, err := a.Auth.Authenticate(c.Request.Context(), credentials(c))
	if err != nil {
		a.fail(c, err)
		c.Abort()
		return
	}
	a.storeTokens(c, id)
	c.Set(ctxIdentity, id)
	c.Next()
}

func (a *api) requireAdmin(c *gin.Context) {
	id := currentUser(c)
	ok, err := a.Profiles.IsAdmin(c.Request.Context(), id.UserID)
	if err != nil {
		a.fail(c, err)
		c.Abort()
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

// currentUser is set by requireUser.
func currentUser(c *gin.Context) identity.Identity {
	v, _ := c.Get(ctxIdentity)
	id, _ := v.(identity.Identity)
	return id
}
