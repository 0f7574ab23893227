package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/config"
	"github.com/imrishuroy/sneakerstore/internal/db"
	"github.com/imrishuroy/sneakerstore/internal/email"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/logging"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
	"github.com/imrishuroy/sneakerstore/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New("sneakerstore-worker", cfg.RunLocal)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.RequireWorker(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	shutdown, err := telemetry.Init(ctx, "sneakerstore-worker", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init telemetry", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	mailer := email.NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridHost, cfg.EmailFrom, cfg.EmailFromName, logger)
	dispatcher := outbox.NewDispatcher(
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.IdempotencyTable),
		invoice.NewRepository(pool),
		mailer,
		cfg.OperatorEmail,
		cfg.EmailFromName,
		cfg.SiteURL,
		logger,
	)
	processor := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		dispatcher,
		2*time.Minute,
		logger,
	)

	// If RUN_LOCAL=true, we can optionally simulate a single SQS event for local testing.
	if cfg.RunLocal {
		// Local testing helper: simulate an event using environment variables
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"id":"local-job-1","kind":"newsletter_welcome","to":"local@example.com"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{
					MessageId: "local-1",
					Body:      testBody,
				},
			},
		}
		resp, err := processor.Handle(ctx, event)
		if err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		logger.Info("local run finished", zap.Int("failures", len(resp.BatchItemFailures)))
		return
	}

	lambda.Start(processor.Handle)
}
