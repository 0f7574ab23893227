// Package lifecycle moves orders through their states and runs the compensations that
// cancellations and returns require.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
	"github.com/imrishuroy/sneakerstore/internal/payment"
)

var (
	ErrForbidden            = errors.New("order belongs to another account")
	ErrReturnNotRequested   = errors.New("no return was requested for this order")
	ErrReturnAlreadyPending = errors.New("a return was already requested")
	ErrInvalidStatus        = errors.New("unknown order status")
)

// TransitionError rejects a move the state machine does not allow.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

type OrderStore interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	Transition(ctx context.Context, orderID, expected, next string, fields map[string]any) (*orders.Order, error)
	SetRefund(ctx context.Context, orderID string, refund orders.Refund) error
}

type Stock interface {
	Restore(ctx context.Context, orderID string, line catalog.Line) error
}

type Refunder interface {
	Refund(ctx context.Context, p payment.RefundParams) (*payment.Refund, error)
}

type Rectifier interface {
	IssueRectification(ctx context.Context, orderID string, amount money.Cents, email string) (*invoice.Invoice, bool, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job outbox.Job) error
}

type Reporter interface {
	Report(ctx context.Context, metric string, dims map[string]string)
}

type Deps struct {
	Orders   OrderStore
	Stock    Stock
	Refunds  Refunder
	Invoices Rectifier
	Outbox   Enqueuer
	Metrics  Reporter
	Logger   *zap.Logger
}

// Outcome is the order after a change. Warnings list compensations that need an operator.
type Outcome struct {
	Order    *orders.Order `json:"order"`
	Warnings []string      `json:"warnings,omitempty"`
}

type Manager struct {
	deps          Deps
	compensations metric.Int64Counter
	nowFunc       func() time.Time
}

func NewManager(deps Deps) *Manager {
	counter, _ := otel.Meter("lifecycle").Int64Counter("order_compensations",
		metric.WithDescription("Cancellations and returns compensated"))
	return &Manager{deps: deps, compensations: counter, nowFunc: time.Now}
}

func (m *Manager) owned(ctx context.Context, orderID, userID string) (*orders.Order, error) {
	o, err := m.deps.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == "" || o.UserID != userID {
		return nil, ErrForbidden
	}
	return o, nil
}

// Cancel handles a customer cancellation. A paid order is cancelled and compensated at once;
// a shipped order only records the request for the operator.
func (m *Manager) Cancel(ctx context.Context, orderID, userID, reason string) (*Outcome, error) {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "lifecycle.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID))

	o, err := m.owned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc().UTC()

	switch o.Status {
	case orders.StatusPaid:
		updated, err := m.deps.Orders.Transition(ctx, orderID, orders.StatusPaid, orders.StatusCancelled, map[string]any{
			"cancelled_at":     now,
			"cancelled_reason": reason,
		})
		if err != nil {
			return nil, m.mismatch(err, o.Status, orders.StatusCancelled)
		}
		return m.compensate(ctx, updated), nil

	case orders.StatusShipped:
		updated, err := m.deps.Orders.Transition(ctx, orderID, orders.StatusShipped, orders.StatusProcessing, map[string]any{
			"cancellation_requested_at": now,
			"cancelled_reason":          reason,
		})
		if err != nil {
			return nil, m.mismatch(err, o.Status, orders.StatusProcessing)
		}
		out := &Outcome{Order: updated}
		m.enqueue(ctx, out, outbox.Job{
			Kind: outbox.KindCancellationRequested, OrderID: orderID, Reason: reason, RequestedAt: now,
		})
		m.deps.Logger.Info("cancellation requested for shipped order", zap.String("order_id", orderID))
		return out, nil
	}
	return nil, &TransitionError{From: o.Status, To: orders.StatusCancelled}
}

// RequestReturn records a customer's return request on a shipped or delivered order.
func (m *Manager) RequestReturn(ctx context.Context, orderID, userID, reason string) (*Outcome, error) {
	o, err := m.owned(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.StatusShipped && o.Status != orders.StatusDelivered {
		return nil, &TransitionError{From: o.Status, To: orders.StatusReturned}
	}
	if o.ReturnRequestedAt != nil {
		return nil, ErrReturnAlreadyPending
	}

	now := m.nowFunc().UTC()
	updated, err := m.deps.Orders.Transition(ctx, orderID, o.Status, o.Status, map[string]any{
		"return_requested_at": now,
		"return_reason":       reason,
	})
	if err != nil {
		return nil, m.mismatch(err, o.Status, orders.StatusReturned)
	}
	out := &Outcome{Order: updated}
	m.enqueue(ctx, out, outbox.Job{Kind: outbox.KindReturnRequested, OrderID: orderID, Reason: reason, RequestedAt: now})
	return out, nil
}

// ApproveReturn moves an order with a pending return request to returned and compensates it.
func (m *Manager) ApproveReturn(ctx context.Context, orderID string) (*Outcome, error) {
	o, err := m.deps.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if orders.Terminal(o.Status) {
		return nil, &TransitionError{From: o.Status, To: orders.StatusReturned}
	}
	if o.ReturnRequestedAt == nil {
		return nil, ErrReturnNotRequested
	}
	updated, err := m.deps.Orders.Transition(ctx, orderID, o.Status, orders.StatusReturned, map[string]any{
		"returned_at": m.nowFunc().UTC(),
	})
	if err != nil {
		return nil, m.mismatch(err, o.Status, orders.StatusReturned)
	}
	return m.compensate(ctx, updated), nil
}

// SetStatus is the operator's status change. Orders only move forward along
// paid, processing, shipped, delivered, or into cancelled or returned, which compensates
// the order. Terminal orders accept no change.
func (m *Manager) SetStatus(ctx context.Context, orderID, target string) (*Outcome, error) {
	ctx, span := otel.Tracer("lifecycle").Start(ctx, "lifecycle.set_status")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", orderID), attribute.String("status", target))

	if !orders.ValidStatus(target) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	o, err := m.deps.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == target {
		return &Outcome{Order: o}, nil
	}
	if orders.Terminal(o.Status) || !forward(o.Status, target) {
		return nil, &TransitionError{From: o.Status, To: target}
	}

	now := m.nowFunc().UTC()
	fields := map[string]any{}
	switch target {
	case orders.StatusShipped:
		fields["shipped_at"] = now
	case orders.StatusDelivered:
		fields["delivered_at"] = now
	case orders.StatusCancelled:
		fields["cancelled_at"] = now
	case orders.StatusReturned:
		fields["returned_at"] = now
	}

	updated, err := m.deps.Orders.Transition(ctx, orderID, o.Status, target, fields)
	if err != nil {
		return nil, m.mismatch(err, o.Status, target)
	}
	m.deps.Logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", o.Status),
		zap.String("to", target),
	)

	switch target {
	case orders.StatusCancelled, orders.StatusReturned:
		return m.compensate(ctx, updated), nil
	case orders.StatusShipped:
		out := &Outcome{Order: updated}
		m.enqueue(ctx, out, outbox.Job{Kind: outbox.KindOrderShipped, OrderID: orderID})
		return out, nil
	}
	return &Outcome{Order: updated}, nil
}

func forward(from, to string) bool {
	if to == orders.StatusCancelled || to == orders.StatusReturned {
		return true
	}
	return slices.Index(orders.Statuses, to) > slices.Index(orders.Statuses, from)
}

// mismatch turns a lost status race into a TransitionError; other errors pass through.
func (m *Manager) mismatch(err error, from, to string) error {
	if errors.Is(err, orders.ErrStatusMismatch) {
		return fmt.Errorf("%w: %w", &TransitionError{From: from, To: to}, err)
	}
	return err
}

// compensate runs after the winning status write, so it runs once per order. Each step is
// best effort and never undoes the status change.
func (m *Manager) compensate(ctx context.Context, o *orders.Order) *Outcome {
	log := m.deps.Logger.With(zap.String("order_id", o.OrderID), zap.String("status", o.Status))
	out := &Outcome{Order: o}
	if m.compensations != nil {
		m.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", o.Status)))
	}

	for _, it := range o.Items {
		line := catalog.Line{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity}
		err := m.deps.Stock.Restore(ctx, o.OrderID, line)
		switch {
		case err == nil:
			continue
		case errors.Is(err, catalog.ErrNoSaleMovement):
			log.Warn("nothing to restock, sale was never recorded", zap.String("product_id", it.ProductID), zap.String("size", it.Size))
		default:
			log.Error("restock failed", zap.String("product_id", it.ProductID), zap.String("size", it.Size), zap.Error(err))
		}
		out.Warnings = append(out.Warnings, fmt.Sprintf("restock %s size %s: %v", it.ProductID, it.Size, err))
		m.report(ctx, aws.MetricStockAnomaly, map[string]string{"ProductId": it.ProductID, "Size": it.Size})
	}

	if o.PaymentIntentID != "" {
		refund := orders.Refund{AmountCents: o.TotalCents}
		r, err := m.deps.Refunds.Refund(ctx, payment.RefundParams{
			PaymentIntentID: o.PaymentIntentID,
			Amount:          o.TotalCents,
			IdempotencyKey:  "refund-" + o.OrderID,
		})
		if err != nil {
			log.Error("refund failed", zap.Error(err))
			refund.Status = "failed"
			refund.Error = err.Error()
			out.Warnings = append(out.Warnings, fmt.Sprintf("refund: %v", err))
			m.report(ctx, aws.MetricRefundFailed, map[string]string{"OrderId": o.OrderID})
		} else {
			refund.ID = r.ID
			refund.Status = r.Status
		}
		if err := m.deps.Orders.SetRefund(ctx, o.OrderID, refund); err != nil {
			log.Error("refund not recorded", zap.Error(err))
			out.Warnings = append(out.Warnings, fmt.Sprintf("record refund: %v", err))
		} else {
			o.Refund = &refund
		}
	}

	if _, _, err := m.deps.Invoices.IssueRectification(ctx, o.OrderID, o.TotalCents, o.BillingEmail); err != nil {
		log.Error("rectification invoice failed", zap.Error(err))
		out.Warnings = append(out.Warnings, fmt.Sprintf("rectification invoice: %v", err))
		m.report(ctx, aws.MetricInvoiceFailed, map[string]string{"Type": invoice.TypeRectification})
	}

	kind := outbox.KindOrderCancelled
	if o.Status == orders.StatusReturned {
		kind = outbox.KindOrderReturned
	}
	m.enqueue(ctx, out, outbox.Job{Kind: kind, OrderID: o.OrderID})
	log.Info("order compensated", zap.Int("warnings", len(out.Warnings)))
	return out
}

func (m *Manager) enqueue(ctx context.Context, out *Outcome, job outbox.Job) {
	if err := m.deps.Outbox.Enqueue(ctx, job); err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%s not queued: %v", job.Kind, err))
	}
}

func (m *Manager) report(ctx context.Context, metricName string, dims map[string]string) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.Report(ctx, metricName, dims)
	}
}
