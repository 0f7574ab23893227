package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/email"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/orders"
)

type OrderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
}

type InvoiceReader interface {
	Get(ctx context.Context, orderID, invoiceType string) (*invoice.Invoice, error)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

// Dispatcher turns a job into the email it stands for.
type Dispatcher struct {
	orders   OrderReader
	invoices InvoiceReader
	mailer   Mailer
	operator string
	seller   string
	siteURL  string
	logger   *zap.Logger
}

func NewDispatcher(ordersRd OrderReader, invoices InvoiceReader, mailer Mailer, operatorEmail, seller, siteURL string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		orders:   ordersRd,
		invoices: invoices,
		mailer:   mailer,
		operator: operatorEmail,
		seller:   seller,
		siteURL:  siteURL,
		logger:   logger,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, job Job) error {
	msg, err := d.message(ctx, job)
	if err != nil {
		return err
	}
	if msg.To == "" {
		d.logger.Warn("job has no recipient, skipping", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
		return nil
	}
	return d.mailer.Send(ctx, msg)
}

func (d *Dispatcher) message(ctx context.Context, job Job) (email.Message, error) {
	switch job.Kind {
	case KindNewsletterWelcome:
		return email.NewsletterWelcome(job.To), nil
	case KindVIPWelcome:
		pct, err := decimal.NewFromString(job.Percent)
		if err != nil {
			return email.Message{}, fmt.Errorf("vip percent %q: %w", job.Percent, err)
		}
		return email.VIPWelcome(job.To, job.Code, pct), nil
	case KindAbandonedCart:
		if job.Cart == nil {
			return email.Message{}, fmt.Errorf("abandoned cart job %s has no cart", job.ID)
		}
		return email.AbandonedCart(job.To, *job.Cart, d.siteURL), nil
	}

	o, err := d.orders.Get(ctx, job.OrderID)
	if err != nil {
		return email.Message{}, fmt.Errorf("load order %s: %w", job.OrderID, err)
	}

	switch job.Kind {
	case KindOrderConfirmation:
		number, pdf, err := d.invoicePDF(ctx, *o, invoice.TypeStandard)
		if err != nil {
			return email.Message{}, err
		}
		return email.OrderConfirmation(*o, number, pdf), nil
	case KindOrderCancelled:
		number, pdf, err := d.invoicePDF(ctx, *o, invoice.TypeRectification)
		if err != nil {
			return email.Message{}, err
		}
		return email.OrderCancelled(*o, number, pdf), nil
	case KindOrderReturned:
		number, pdf, err := d.invoicePDF(ctx, *o, invoice.TypeRectification)
		if err != nil {
			return email.Message{}, err
		}
		return email.OrderReturned(*o, number, pdf), nil
	case KindOrderShipped:
		return email.OrderShipped(*o), nil
	case KindAdminOrderNotice:
		return email.OperatorNotice(d.operator, "New order", *o, ""), nil
	case KindCancellationRequested:
		return email.OperatorNotice(d.operator, "Cancellation requested", *o, job.Reason), nil
	case KindReturnRequested:
		return email.OperatorNotice(d.operator, "Return requested", *o, job.Reason), nil
	}
	return email.Message{}, fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
}

// invoicePDF renders the order's invoice of the given type. A missing invoice sends the
// email without attachment.
func (d *Dispatcher) invoicePDF(ctx context.Context, o orders.Order, invoiceType string) (string, []byte, error) {
	inv, err := d.invoices.Get(ctx, o.OrderID, invoiceType)
	if errors.Is(err, invoice.ErrNotFound) {
		d.logger.Warn("invoice missing, sending without attachment",
			zap.String("order_id", o.OrderID), zap.String("invoice_type", invoiceType))
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("load invoice: %w", err)
	}

	doc := invoice.NewDocument(*inv, o, d.seller)
	if inv.OriginalInvoiceID != nil {
		if std, err := d.invoices.Get(ctx, o.OrderID, invoice.TypeStandard); err == nil {
			doc.OriginalNumber = std.Number
		}
	}
	pdf, err := invoice.Render(doc)
	if err != nil {
		return "", nil, err
	}
	return inv.Number, pdf, nil
}
