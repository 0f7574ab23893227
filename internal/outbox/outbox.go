package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/cart"
)

// Sender publishes a message body with string attributes. *aws.Publisher implements it.
type Sender interface {
	Send(ctx context.Context, body string, attributes map[string]string) (string, error)
}

// Reporter records reconciliation metrics. *aws.AnomalyReporter implements it.
type Reporter interface {
	Report(ctx context.Context, metric string, dims map[string]string)
}

type Outbox struct {
	sender  Sender
	metrics Reporter
	logger  *zap.Logger
	nowFunc func() time.Time
}

func New(sender Sender, metrics Reporter, logger *zap.Logger) *Outbox {
	return &Outbox{sender: sender, metrics: metrics, logger: logger, nowFunc: time.Now}
}

// Enqueue publishes job. A failure is reported and returned; callers treat it as a warning.
// Order jobs get a deterministic id so the worker sends each of them once.
func (o *Outbox) Enqueue(ctx context.Context, job Job) error {
	job.CreatedAt = o.nowFunc().UTC()
	if job.ID == "" {
		job.ID = jobID(job)
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	attrs := map[string]string{
		"kind":     string(job.Kind),
		"order_id": job.OrderID,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		attrs["trace_id"] = sc.TraceID().String()
	}
	msgID, err := o.sender.Send(ctx, string(body), attrs)
	if err != nil {
		o.logger.Error("enqueue failed",
			zap.String("kind", string(job.Kind)),
			zap.String("order_id", job.OrderID),
			zap.Error(err),
		)
		if o.metrics != nil {
			o.metrics.Report(ctx, aws.MetricEnqueueFailed, map[string]string{"Kind": string(job.Kind)})
		}
		return fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}
	o.logger.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("message_id", msgID),
	)
	return nil
}

// jobID is kind:order for once-per-order kinds and kind:order:nanos for customer
// requests, which can repeat after an operator answers the previous one.
func jobID(job Job) string {
	if job.OrderID == "" {
		return uuid.NewString()
	}
	id := string(job.Kind) + ":" + job.OrderID
	if job.Kind.PerRequest() {
		at := job.RequestedAt
		if at.IsZero() {
			at = job.CreatedAt
		}
		id += ":" + strconv.FormatInt(at.UnixNano(), 10)
	}
	return id
}

// AbandonedCart queues a reminder for an idle cart.
func (o *Outbox) AbandonedCart(ctx context.Context, email string, view cart.View) error {
	return o.Enqueue(ctx, Job{Kind: KindAbandonedCart, To: email, Cart: &view})
}
