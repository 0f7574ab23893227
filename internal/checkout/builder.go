// Package checkout turns a cart into a hosted payment session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/identity"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/payment"
)

// Metadata keys written next to the cart envelope.
const (
	MetaUserID        = "user_id"
	MetaCustomerEmail = "customer_email"
	MetaDiscountCode  = "discount_code"
	MetaDiscountType  = "discount_type"
	MetaDiscountValue = "discount_value"
	MetaCartID        = "cart_id"
)

var ErrEmptyCart = errors.New("cart is empty")

// Conflict is one line the catalog can no longer satisfy.
type Conflict struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Size      string `json:"size"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// StockConflictError rejects the whole checkout and lists every short line.
type StockConflictError struct {
	Items []Conflict
}

func (e *StockConflictError) Error() string {
	parts := make([]string, len(e.Items))
	for i, c := range e.Items {
		parts[i] = fmt.Sprintf("%s (size %s): %d available", c.Name, c.Size, c.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// ProviderError carries the payment provider's message unchanged.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

type IdentityResolver interface {
	ResolveCheckout(ctx context.Context, creds identity.Credentials) (identity.Identity, error)
}

type Catalog interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type DiscountChecker interface {
	Check(ctx context.Context, code string, subtotal money.Cents, userID string) (*discount.Code, error)
}

type Provider interface {
	CreateCoupon(ctx context.Context, p payment.CouponParams) (string, error)
	CreateSession(ctx context.Context, p payment.SessionParams) (*payment.Session, error)
}

// Item is a requested line. Prices never come from the client.
type Item struct {
	ProductID string
	Quantity  int
	Size      string
}

type Request struct {
	Items        []Item
	DiscountCode string
	CartID       string
	Credentials  identity.Credentials
}

type Result struct {
	SessionID string
	URL       string
	Identity  identity.Identity
}

type Builder struct {
	identity  IdentityResolver
	catalog   Catalog
	discounts DiscountChecker
	provider  Provider
	currency  string
	siteURL   string
	logger    *zap.Logger
}

func NewBuilder(ident IdentityResolver, cat Catalog, discounts DiscountChecker, provider Provider, currency, siteURL string, logger *zap.Logger) *Builder {
	return &Builder{
		identity:  ident,
		catalog:   cat,
		discounts: discounts,
		provider:  provider,
		currency:  currency,
		siteURL:   strings.TrimRight(siteURL, "/"),
		logger:    logger,
	}
}

// Build validates identity, stock and discount, then creates the provider session.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.build")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}

	who, err := b.identity.ResolveCheckout(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("checkout.guest", who.Guest))

	lines, err := b.priceLines(ctx, req.Items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	var subtotal money.Cents
	plain := make([]Line, len(lines))
	for i, l := range lines {
		subtotal += l.PriceCents * money.Cents(l.Quantity)
		plain[i] = l.Line
	}

	meta, err := Encode(plain)
	if err != nil {
		return nil, err
	}
	if who.UserID != "" {
		meta[MetaUserID] = who.UserID
	}
	meta[MetaCustomerEmail] = who.Email
	if req.CartID != "" {
		meta[MetaCartID] = req.CartID
	}

	params := payment.SessionParams{
		Currency:          b.currency,
		CustomerEmail:     who.Email,
		Metadata:          meta,
		SuccessURL:        b.siteURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:         b.siteURL + "/cart",
		ClientReferenceID: who.UserID,
	}

	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		c, err := b.discounts.Check(ctx, code, subtotal, who.UserID)
		if err != nil {
			return nil, err
		}
		coupon := payment.CouponParams{Name: c.Code, Currency: b.currency}
		if c.Type == discount.Percentage {
			v := c.Value
			coupon.PercentOff = &v
		} else {
			coupon.AmountOff = discount.Amount(c.Type, c.Value, subtotal)
		}
		id, err := b.provider.CreateCoupon(ctx, coupon)
		if err != nil {
			span.RecordError(err)
			return nil, &ProviderError{Err: err}
		}
		params.CouponID = id
		meta[MetaDiscountCode] = c.Code
		meta[MetaDiscountType] = string(c.Type)
		meta[MetaDiscountValue] = c.Value.String()
	}

	for _, l := range lines {
		params.Lines = append(params.Lines, payment.LineItem{
			Name:       l.Name,
			Brand:      l.brand,
			Image:      l.image,
			UnitAmount: l.PriceCents,
			Quantity:   l.Quantity,
		})
	}

	sess, err := b.provider.CreateSession(ctx, params)
	if err != nil {
		span.RecordError(err)
		return nil, &ProviderError{Err: err}
	}
	b.logger.Info("checkout session created",
		zap.String("session_id", sess.ID),
		zap.Bool("guest", who.Guest),
		zap.Int64("subtotal_cents", int64(subtotal)),
	)
	return &Result{SessionID: sess.ID, URL: sess.URL, Identity: who}, nil
}

type pricedLine struct {
	Line
	brand string
	image string
}

// priceLines re-reads every product so price and stock are the catalog's, not the client's.
func (b *Builder) priceLines(ctx context.Context, items []Item) ([]pricedLine, error) {
	ids := make([]string, 0, len(items))
	requested := make(map[string]int)
	for _, it := range items {
		ids = append(ids, it.ProductID)
		requested[it.ProductID+"|"+it.Size] += it.Quantity
	}
	products, err := b.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	var conflicts []Conflict
	seen := make(map[string]bool)
	out := make([]pricedLine, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		p, ok := products[it.ProductID]
		key := it.ProductID + "|" + it.Size
		available := 0
		if ok && p.Active {
			available = p.Stock(it.Size)
		}
		if want := requested[key]; want > available {
			if !seen[key] {
				seen[key] = true
				name := p.Name
				if name == "" {
					name = it.ProductID
				}
				conflicts = append(conflicts, Conflict{
					ProductID: it.ProductID, Name: name, Size: it.Size,
					Requested: want, Available: available,
				})
			}
			continue
		}
		out = append(out, pricedLine{
			Line: Line{
				ProductID:  p.ID,
				Name:       p.Name,
				PriceCents: p.PriceCents,
				Quantity:   it.Quantity,
				Size:       it.Size,
			},
			brand: p.Brand,
			image: p.FirstImage(),
		})
	}
	if len(conflicts) > 0 {
		return nil, &StockConflictError{Items: conflicts}
	}
	if len(out) == 0 {
		return nil, ErrEmptyCart
	}
	return out, nil
}
