package orders

import (
	"time"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

// Order statuses
const (
	StatusPending    = "pending"
	StatusPaid       = "paid"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
	StatusReturned   = "returned"
)

// Statuses lists every status in lifecycle order.
var Statuses = []string{
	StatusPending, StatusPaid, StatusProcessing, StatusShipped,
	StatusDelivered, StatusCancelled, StatusReturned,
}

// Terminal reports whether status accepts no further transitions.
func Terminal(status string) bool {
	return status == StatusCancelled || status == StatusReturned
}

// ValidStatus reports whether status is a known order status.
func ValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Item is an order line, enriched from the catalog at completion time.
type Item struct {
	ProductID  string      `dynamodbav:"id" json:"id"`
	Name       string      `dynamodbav:"name" json:"name"`
	Brand      string      `dynamodbav:"brand,omitempty" json:"brand,omitempty"`
	PriceCents money.Cents `dynamodbav:"price" json:"price"`
	Quantity   int         `dynamodbav:"qty" json:"qty"`
	Size       string      `dynamodbav:"size" json:"size"`
	Image      string      `dynamodbav:"image,omitempty" json:"image,omitempty"`
}

// LineTotal is price times quantity.
func (it Item) LineTotal() money.Cents { return it.PriceCents * money.Cents(it.Quantity) }

type Address struct {
	Line1      string `dynamodbav:"line1,omitempty" json:"line1,omitempty"`
	Line2      string `dynamodbav:"line2,omitempty" json:"line2,omitempty"`
	City       string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	PostalCode string `dynamodbav:"postal_code,omitempty" json:"postal_code,omitempty"`
	State      string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	Country    string `dynamodbav:"country,omitempty" json:"country,omitempty"`
}

// Refund records the outcome of the provider refund issued on cancellation or return.
type Refund struct {
	ID          string      `dynamodbav:"id,omitempty" json:"id,omitempty"`
	Status      string      `dynamodbav:"status" json:"status"`
	AmountCents money.Cents `dynamodbav:"amount" json:"amount"`
	Error       string      `dynamodbav:"error,omitempty" json:"error,omitempty"`
}

// Order represents the item stored in the Orders DynamoDB table.
// user_id-index and payment_intent-index are sparse GSIs, hence omitempty.
type Order struct {
	OrderID         string      `dynamodbav:"order_id" json:"id"` // PK
	UserID          string      `dynamodbav:"user_id,omitempty" json:"user_id,omitempty"`
	SessionID       string      `dynamodbav:"stripe_session_id" json:"stripe_session_id"`
	PaymentIntentID string      `dynamodbav:"payment_intent_id,omitempty" json:"payment_intent_id,omitempty"`
	Status          string      `dynamodbav:"status" json:"status"`
	Items           []Item      `dynamodbav:"items" json:"items"`
	TotalCents      money.Cents `dynamodbav:"total_amount" json:"total_amount"`
	Currency        string      `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	DiscountCode    string      `dynamodbav:"discount_code,omitempty" json:"discount_code,omitempty"`
	DiscountCents   money.Cents `dynamodbav:"discount_amount,omitempty" json:"discount_amount,omitempty"`
	ShippingAddress *Address    `dynamodbav:"shipping_address,omitempty" json:"shipping_address,omitempty"`
	CustomerName    string      `dynamodbav:"customer_name,omitempty" json:"customer_name,omitempty"`
	BillingEmail    string      `dynamodbav:"billing_email,omitempty" json:"billing_email,omitempty"`

	CancelledAt             *time.Time `dynamodbav:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CancelledReason         string     `dynamodbav:"cancelled_reason,omitempty" json:"cancelled_reason,omitempty"`
	CancellationRequestedAt *time.Time `dynamodbav:"cancellation_requested_at,omitempty" json:"cancellation_requested_at,omitempty"`
	ShippedAt               *time.Time `dynamodbav:"shipped_at,omitempty" json:"shipped_at,omitempty"`
	DeliveredAt             *time.Time `dynamodbav:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	ReturnRequestedAt       *time.Time `dynamodbav:"return_requested_at,omitempty" json:"return_requested_at,omitempty"`
	ReturnReason            string     `dynamodbav:"return_reason,omitempty" json:"return_reason,omitempty"`
	ReturnedAt              *time.Time `dynamodbav:"returned_at,omitempty" json:"returned_at,omitempty"`
	Refund                  *Refund    `dynamodbav:"refund,omitempty" json:"refund,omitempty"`

	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// ItemsTotal is the sum of line totals, before any discount.
func (o Order) ItemsTotal() money.Cents {
	var sum money.Cents
	for _, it := range o.Items {
		sum += it.LineTotal()
	}
	return sum
}
