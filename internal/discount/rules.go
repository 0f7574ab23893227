package discount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

var hundred = decimal.NewFromInt(100)

// Evaluate applies every rule to c at instant now. userUses is the number of orders the
// caller already placed with c; it is ignored when c has no per-user cap.
func Evaluate(c Code, subtotal money.Cents, userUses int, now time.Time) error {
	if !c.Active {
		return &InvalidError{Reason: ReasonInactive}
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return &InvalidError{Reason: ReasonNotStarted}
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return &InvalidError{Reason: ReasonExpired}
	}
	if int64(subtotal) < c.MinPurchase {
		return &InvalidError{Reason: ReasonMinPurchase}
	}
	if c.MaxUses != nil && c.UsesCount >= *c.MaxUses {
		return &InvalidError{Reason: ReasonMaxUses}
	}
	if c.MaxUsesPerUser != nil && userUses >= *c.MaxUsesPerUser {
		return &InvalidError{Reason: ReasonMaxUsesPerUser}
	}
	return nil
}

// Amount is the discount for subtotal, rounded half up and never above subtotal.
func Amount(t Type, value decimal.Decimal, subtotal money.Cents) money.Cents {
	if subtotal <= 0 || value.Sign() <= 0 {
		return 0
	}
	var amt money.Cents
	switch t {
	case Percentage:
		amt = money.FromDecimal(subtotal.Decimal().Mul(value).Div(hundred))
	case Fixed:
		amt = money.FromDecimal(value)
	default:
		return 0
	}
	return money.Min(amt, subtotal)
}

// AmountFor is Amount for an applied discount; nil means no discount.
func AmountFor(a *Applied, subtotal money.Cents) money.Cents {
	if a == nil {
		return 0
	}
	return Amount(a.Type, a.Value, subtotal)
}
