// Package outbox queues best-effort side effects on SQS and runs them in the worker.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/sneakerstore/internal/cart"
)

type Kind string

// Job kinds
const (
	KindOrderConfirmation     Kind = "order_confirmation"
	KindAdminOrderNotice      Kind = "admin_order_notification"
	KindOrderCancelled        Kind = "order_cancelled"
	KindOrderReturned         Kind = "order_returned"
	KindCancellationRequested Kind = "cancellation_requested"
	KindReturnRequested       Kind = "return_requested"
	KindOrderShipped          Kind = "order_shipped"
	KindNewsletterWelcome     Kind = "newsletter_welcome"
	KindVIPWelcome            Kind = "vip_welcome"
	KindAbandonedCart         Kind = "abandoned_cart"
)

var ErrUnknownKind = errors.New("unknown job kind")

// Job is one queued side effect. Only the fields its Kind needs are set.
type Job struct {
	ID      string     `json:"id"`
	Kind    Kind       `json:"kind"`
	OrderID string     `json:"order_id,omitempty"`
	To      string     `json:"to,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Code    string     `json:"code,omitempty"`
	Percent string     `json:"percent,omitempty"`
	Cart    *cart.View `json:"cart,omitempty"`

	// RequestedAt tells repeated customer requests on one order apart.
	RequestedAt time.Time `json:"requested_at,omitzero"`
	CreatedAt   time.Time `json:"created_at"`
}

// PerRequest reports whether an order may see more than one job of kind k.
func (k Kind) PerRequest() bool {
	return k == KindCancellationRequested || k == KindReturnRequested
}

// Decode parses a queue message body.
func Decode(body string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return Job{}, fmt.Errorf("invalid job body: %w", err)
	}
	if j.ID == "" || j.Kind == "" {
		return Job{}, fmt.Errorf("invalid job body: missing id or kind")
	}
	return j, nil
}
