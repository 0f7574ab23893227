package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. Keys are namespaced by
// their use, e.g. "stripe_event#evt_123" or "job#<uuid>".
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	Ref            string    `dynamodbav:"ref,omitempty"`             // order id or job kind
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 200
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds, 0 keeps forever
	Note           string    `dynamodbav:"note,omitempty"`
}

// Outcome of Acquire.
type Outcome int

const (
	// Acquired means the caller owns the key and must MarkDone or MarkFailed.
	Acquired Outcome = iota
	// AlreadyDone means a previous attempt finished; the record holds its response.
	AlreadyDone
	// InFlight means another attempt holds a live lease.
	InFlight
)
