// Package payment hides the hosted checkout provider behind plain types.
package payment

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Event types handled by the webhook.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentFailed     = "payment_intent.payment_failed"
	EventChargeRefunded    = "charge.refunded"
)

type LineItem struct {
	Name       string
	Brand      string
	Image      string
	UnitAmount money.Cents
	Quantity   int
}

// CouponParams describes a one-time coupon mirroring a validated discount code.
type CouponParams struct {
	Name       string
	PercentOff *decimal.Decimal
	AmountOff  money.Cents
	Currency   string
}

type SessionParams struct {
	Lines             []LineItem
	Currency          string
	CustomerEmail     string
	CouponID          string
	Metadata          map[string]string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	IdempotencyKey    string
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	State      string
	Country    string
}

// Session is a hosted checkout session. AmountTotal is nil when the provider did not report it.
type Session struct {
	ID              string
	URL             string
	Paid            bool
	AmountTotal     *money.Cents
	Currency        string
	CustomerEmail   string
	CustomerName    string
	Address         *Address
	PaymentIntentID string
	Metadata        map[string]string
}

type RefundParams struct {
	PaymentIntentID string
	Amount          money.Cents
	IdempotencyKey  string
}

type Refund struct {
	ID     string
	Status string
}

// Event is a verified webhook delivery. Only the fields of its type are set.
type Event struct {
	ID   string
	Type string

	Session *Session

	PaymentIntentID string
	FailureMessage  string

	AmountRefunded money.Cents
	FullyRefunded  bool
}
