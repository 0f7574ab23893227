package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
)

// JobLog dedupes jobs across redeliveries.
type JobLog interface {
	Acquire(ctx context.Context, key, ref string, lease time.Duration) (*idempotency.Record, idempotency.Outcome, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// JobHandler performs one job, e.g. sending its email.
type JobHandler interface {
	Handle(ctx context.Context, job outbox.Job) error
}

// Processor handles outbox SQS batches. Every message is processed on its own and only
// the failed ones are reported back for redelivery.
type Processor struct {
	jobs    JobLog
	handler JobHandler
	lease   time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a worker processor. lease bounds how long a crashed attempt blocks a retry.
func NewProcessor(jobs JobLog, handler JobHandler, lease time.Duration, logger *zap.Logger) *Processor {
	return &Processor{jobs: jobs, handler: handler, lease: lease, logger: logger}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	resp := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("job failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	job, err := outbox.Decode(rec.Body)
	if err != nil {
		return err
	}

	ctx, span := otel.Tracer("worker").Start(ctx, "outbox.job")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("job.kind", string(job.Kind)))

	logger := p.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)), zap.String("order_id", job.OrderID))

	key := "outbox_job#" + job.ID
	_, outcome, err := p.jobs.Acquire(ctx, key, string(job.Kind), p.lease)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("acquire job: %w", err)
	}
	switch outcome {
	case idempotency.AlreadyDone:
		logger.Info("duplicate job skipped")
		return nil
	case idempotency.InFlight:
		return fmt.Errorf("job %s is being processed by another worker", job.ID)
	}

	if err := p.handler.Handle(ctx, job); err != nil {
		span.RecordError(err)
		if merr := p.jobs.MarkFailed(ctx, key, err.Error()); merr != nil {
			logger.Warn("mark job failed", zap.Error(merr))
		}
		return fmt.Errorf("handle job: %w", err)
	}

	if err := p.jobs.MarkDone(ctx, key, "", 200); err != nil {
		// the job ran; a redelivery is the worst case
		logger.Warn("mark job done failed", zap.Error(err))
	}
	logger.Info("job done")
	return nil
}
