package discount

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Type is how a code's value is interpreted.
type Type string

const (
	// Percentage values are a percent of the subtotal, e.g. 10 for 10%.
	Percentage Type = "percentage"
	// Fixed values are an amount in cents.
	Fixed Type = "fixed"
)

func (t Type) Valid() bool { return t == Percentage || t == Fixed }

var ErrNotFound = errors.New("discount code not found")

// Code is the authoritative discount_codes row.
type Code struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Type           Type            `json:"discount_type"`
	Value          decimal.Decimal `json:"discount_value"`
	Description    string          `json:"description"`
	Active         bool            `json:"active"`
	StartsAt       *time.Time      `json:"starts_at,omitempty"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	MinPurchase    int64           `json:"min_purchase_cents"`
	MaxUses        *int            `json:"max_uses,omitempty"`
	UsesCount      int             `json:"uses_count"`
	MaxUsesPerUser *int            `json:"max_uses_per_user,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Applied is the discount a cart or checkout carries. At most one per cart.
type Applied struct {
	Code        string          `json:"code"`
	Type        Type            `json:"discount_type"`
	Value       decimal.Decimal `json:"discount_value"`
	Description string          `json:"description"`
}

// Applied returns the cart-facing view of c.
func (c Code) Applied() Applied {
	return Applied{Code: c.Code, Type: c.Type, Value: c.Value, Description: c.Description}
}

// Result is the validate response.
type Result struct {
	Valid       bool             `json:"valid"`
	Type        Type             `json:"discount_type,omitempty"`
	Value       *decimal.Decimal `json:"discount_value,omitempty"`
	Description string           `json:"description,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Reason identifies the rule a code failed.
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonInactive       Reason = "inactive"
	ReasonNotStarted     Reason = "not_started"
	ReasonExpired        Reason = "expired"
	ReasonMinPurchase    Reason = "min_purchase"
	ReasonMaxUses        Reason = "max_uses_reached"
	ReasonMaxUsesPerUser Reason = "max_uses_per_user_reached"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:       "Discount code not found",
	ReasonInactive:       "This discount code is no longer active",
	ReasonNotStarted:     "This discount code is not active yet",
	ReasonExpired:        "This discount code has expired",
	ReasonMinPurchase:    "Cart total is below the minimum purchase for this code",
	ReasonMaxUses:        "This discount code has reached its usage limit",
	ReasonMaxUsesPerUser: "You have already used this discount code",
}

// InvalidError is returned when a code fails a rule.
type InvalidError struct {
	Reason Reason
}

func (e *InvalidError) Error() string {
	if msg, ok := reasonMessages[e.Reason]; ok {
		return msg
	}
	return "invalid discount code"
}
