// Package fulfillment turns a paid checkout session into an order, exactly once.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
	"github.com/imrishuroy/sneakerstore/internal/payment"
)

var ErrNotPaid = errors.New("checkout session is not paid")

type OrderStore interface {
	CreateOnce(ctx context.Context, order orders.Order) (*orders.Order, bool, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*orders.Order, error)
	SetRefund(ctx context.Context, orderID string, refund orders.Refund) error
}

type Catalog interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	Reduce(ctx context.Context, orderID string, line catalog.Line) error
}

type UsageRecorder interface {
	RecordUsage(ctx context.Context, code, orderID, userID, email string) (bool, error)
}

type InvoiceIssuer interface {
	IssueStandard(ctx context.Context, orderID string, amount money.Cents, email string) (*invoice.Invoice, bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job outbox.Job) error
}

type CartClearer interface {
	Clear(ctx context.Context, cartID string) error
}

type SessionFetcher interface {
	GetSession(ctx context.Context, id string) (*payment.Session, error)
}

type Reporter interface {
	Report(ctx context.Context, metric string, dims map[string]string)
}

// Deps groups the collaborators of a Completer.
type Deps struct {
	Orders   OrderStore
	Catalog  Catalog
	Usage    UsageRecorder
	Invoices InvoiceIssuer
	Outbox   Enqueuer
	Carts    CartClearer
	Sessions SessionFetcher
	Metrics  Reporter
	Currency string
	Logger   *zap.Logger
}

// Result is the order for the session. Warnings list best-effort steps that failed.
type Result struct {
	Order    *orders.Order `json:"order"`
	Created  bool          `json:"created"`
	Warnings []string      `json:"warnings,omitempty"`
}

type Completer struct {
	deps    Deps
	created metric.Int64Counter
	nowFunc func() time.Time
}

func NewCompleter(deps Deps) *Completer {
	counter, _ := otel.Meter("fulfillment").Int64Counter("orders_created",
		metric.WithDescription("Orders created from paid checkout sessions"))
	return &Completer{deps: deps, created: counter, nowFunc: time.Now}
}

// Complete creates the order for sess. Replays return the existing order and run no side
// effects. Nothing after the order insert is rolled back.
func (c *Completer) Complete(ctx context.Context, sess *payment.Session) (*Result, error) {
	ctx, span := otel.Tracer("fulfillment").Start(ctx, "fulfillment.complete")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sess.ID))
	log := c.deps.Logger.With(zap.String("session_id", sess.ID))

	if !sess.Paid {
		return nil, ErrNotPaid
	}

	order, err := c.buildOrder(ctx, sess)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	existing, created, err := c.deps.Orders.CreateOnce(ctx, *order)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create order: %w", err)
	}
	if !created {
		log.Info("session already fulfilled", zap.String("order_id", existing.OrderID))
		return &Result{Order: existing}, nil
	}
	if c.created != nil {
		c.created.Add(ctx, 1)
	}
	log = log.With(zap.String("order_id", existing.OrderID))
	log.Info("order created", zap.Int64("total_cents", int64(existing.TotalCents)))

	res := &Result{Order: existing, Created: true}
	warn := func(metricName string, dims map[string]string, msg string, err error) {
		log.Error(msg, zap.Error(err))
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", msg, err))
		if metricName != "" && c.deps.Metrics != nil {
			c.deps.Metrics.Report(ctx, metricName, dims)
		}
	}

	for _, it := range existing.Items {
		line := catalog.Line{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
		if err := c.deps.Catalog.Reduce(ctx, existing.OrderID, line); err != nil {
			warn(aws.MetricStockAnomaly, map[string]string{"ProductId": it.ProductID, "Size": it.Size},
				fmt.Sprintf("stock not reduced for %s size %s", it.ProductID, it.Size), err)
		}
	}

	if existing.DiscountCode != "" {
		if _, err := c.deps.Usage.RecordUsage(ctx, existing.DiscountCode, existing.OrderID, existing.UserID, existing.BillingEmail); err != nil {
			warn(aws.MetricUsageNotLogged, map[string]string{"Code": existing.DiscountCode},
				"discount usage not recorded", err)
		}
	}

	if _, _, err := c.deps.Invoices.IssueStandard(ctx, existing.OrderID, existing.TotalCents, existing.BillingEmail); err != nil {
		warn(aws.MetricInvoiceFailed, map[string]string{"Type": invoice.TypeStandard}, "invoice not issued", err)
	}

	for _, kind := range []outbox.Kind{outbox.KindOrderConfirmation, outbox.KindAdminOrderNotice} {
		if err := c.deps.Outbox.Enqueue(ctx, outbox.Job{Kind: kind, OrderID: existing.OrderID}); err != nil {
			warn("", nil, fmt.Sprintf("%s not queued", kind), err)
		}
	}

	if cartID := sess.Metadata[checkout.MetaCartID]; cartID != "" && c.deps.Carts != nil {
		if err := c.deps.Carts.Clear(ctx, cartID); err != nil {
			warn("", nil, "cart not cleared", err)
		}
	}
	return res, nil
}

// buildOrder decodes the envelope, enriches it from the catalog and settles the total.
func (c *Completer) buildOrder(ctx context.Context, sess *payment.Session) (*orders.Order, error) {
	lines, err := checkout.Decode(sess.Metadata)
	if err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("decode cart: %w", checkout.ErrEmptyCart)
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := c.deps.Catalog.GetProducts(ctx, ids)
	if err != nil {
		// names from the envelope are enough to record the order
		c.deps.Logger.Warn("catalog enrichment failed", zap.String("session_id", sess.ID), zap.Error(err))
		products = nil
	}

	items := make([]orders.Item, len(lines))
	for i, l := range lines {
		it := orders.Item{
			ProductID:  l.ProductID,
			Name:       l.Name,
			PriceCents: l.PriceCents,
			Quantity:   l.Quantity,
			Size:       l.Size,
		}
		if p, ok := products[l.ProductID]; ok {
			it.Name = p.Name
			it.Brand = p.Brand
			it.Image = p.FirstImage()
		}
		items[i] = it
	}

	now := c.nowFunc().UTC()
	o := &orders.Order{
		OrderID:         uuid.NewString(),
		UserID:          sess.Metadata[checkout.MetaUserID],
		SessionID:       sess.ID,
		PaymentIntentID: sess.PaymentIntentID,
		Status:          orders.StatusPaid,
		Items:           items,
		Currency:        sess.Currency,
		DiscountCode:    sess.Metadata[checkout.MetaDiscountCode],
		CustomerName:    sess.CustomerName,
		BillingEmail:    sess.CustomerEmail,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.Currency == "" {
		o.Currency = c.deps.Currency
	}
	if o.BillingEmail == "" {
		o.BillingEmail = sess.Metadata[checkout.MetaCustomerEmail]
	}
	if a := sess.Address; a != nil {
		o.ShippingAddress = &orders.Address{
			Line1: a.Line1, Line2: a.Line2, City: a.City,
			PostalCode: a.PostalCode, State: a.State, Country: a.Country,
		}
	}

	o.TotalCents = c.total(ctx, sess, o.ItemsTotal())
	if o.DiscountCode != "" && o.TotalCents < o.ItemsTotal() {
		o.DiscountCents = o.ItemsTotal() - o.TotalCents
	}
	return o, nil
}

// total prefers the provider's amount, then a fresh read of the session, then the line sum.
func (c *Completer) total(ctx context.Context, sess *payment.Session, linesTotal money.Cents) money.Cents {
	if sess.AmountTotal != nil {
		return *sess.AmountTotal
	}
	if c.deps.Sessions != nil {
		fresh, err := c.deps.Sessions.GetSession(ctx, sess.ID)
		if err == nil && fresh.AmountTotal != nil {
			return *fresh.AmountTotal
		}
		if err != nil {
			c.deps.Logger.Warn("session refetch failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return linesTotal
}

// Confirm fetches the session from the provider and completes it. It backs the client-side
// confirmation call when the webhook has not arrived yet.
func (c *Completer) Confirm(ctx context.Context, sessionID string) (*Result, error) {
	sess, err := c.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return c.Complete(ctx, sess)
}

// RecordRefund stamps a provider-side refund on the order paid with paymentIntentID.
func (c *Completer) RecordRefund(ctx context.Context, ev payment.Event) error {
	if ev.PaymentIntentID == "" {
		return nil
	}
	o, err := c.deps.Orders.GetByPaymentIntent(ctx, ev.PaymentIntentID)
	if errors.Is(err, orders.ErrNotFound) {
		c.deps.Logger.Warn("refund for unknown payment", zap.String("payment_intent_id", ev.PaymentIntentID))
		return nil
	}
	if err != nil {
		return err
	}

	refund := orders.Refund{Status: "partially_refunded", AmountCents: ev.AmountRefunded}
	if o.Refund != nil {
		refund.ID = o.Refund.ID
	}
	if ev.FullyRefunded {
		refund.Status = "refunded"
	}
	if err := c.deps.Orders.SetRefund(ctx, o.OrderID, refund); err != nil {
		return fmt.Errorf("record refund: %w", err)
	}
	c.deps.Logger.Info("refund recorded",
		zap.String("order_id", o.OrderID),
		zap.String("status", refund.Status),
		zap.Int64("amount_cents", int64(ev.AmountRefunded)),
	)
	return nil
}
