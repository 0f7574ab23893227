package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Stripe implements the provider operations with stripe-go.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (s *Stripe) CreateCoupon(ctx context.Context, p CouponParams) (string, error) {
	params := &stripe.CouponParams{
		Name:           stripe.String(p.Name),
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
	}
	params.Context = ctx
	if p.PercentOff != nil {
		pct, _ := p.PercentOff.Float64()
		params.PercentOff = stripe.Float64(pct)
	} else {
		params.AmountOff = stripe.Int64(int64(p.AmountOff))
		params.Currency = stripe.String(p.Currency)
	}
	c, err := s.api.Coupons.New(params)
	if err != nil {
		return "", fmt.Errorf("create coupon: %w", err)
	}
	return c.ID, nil
}

func (s *Stripe) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"ES", "PT", "FR", "DE", "IT"}),
		},
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.ClientReferenceID != "" {
		params.ClientReferenceID = stripe.String(p.ClientReferenceID)
	}
	if p.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(p.CouponID)}}
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	for _, l := range p.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(l.Name)}
		if l.Brand != "" {
			product.Description = stripe.String(l.Brand)
		}
		if l.Image != "" {
			product.Images = stripe.StringSlice([]string{l.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(p.Currency),
				UnitAmount:  stripe.Int64(int64(l.UnitAmount)),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(l.Quantity)),
		})
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toSession(cs), nil
}

func (s *Stripe) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return toSession(cs), nil
}

func (s *Stripe) Refund(ctx context.Context, p RefundParams) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if p.Amount > 0 {
		params.Amount = stripe.Int64(int64(p.Amount))
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &Refund{ID: r.ID, Status: string(r.Status)}, nil
}

// ParseWebhook verifies the signature header before decoding anything.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = toSession(&cs)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
		out.AmountRefunded = money.Cents(ch.AmountRefunded)
		out.FullyRefunded = ch.Refunded
	}
	return out, nil
}

func toSession(cs *stripe.CheckoutSession) *Session {
	out := &Session{
		ID:            cs.ID,
		URL:           cs.URL,
		Paid:          cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid || cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
		Currency:      string(cs.Currency),
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
	}
	if cs.AmountTotal > 0 {
		total := money.Cents(cs.AmountTotal)
		out.AmountTotal = &total
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	if d := cs.CustomerDetails; d != nil {
		if d.Email != "" {
			out.CustomerEmail = d.Email
		}
		out.CustomerName = d.Name
		if a := d.Address; a != nil {
			out.Address = &Address{
				Line1:      a.Line1,
				Line2:      a.Line2,
				City:       a.City,
				PostalCode: a.PostalCode,
				State:      a.State,
				Country:    a.Country,
			}
		}
	}
	return out
}
