package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/account"
	"github.com/imrishuroy/sneakerstore/internal/aws"
	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/config"
	"github.com/imrishuroy/sneakerstore/internal/db"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/fulfillment"
	"github.com/imrishuroy/sneakerstore/internal/handlers"
	"github.com/imrishuroy/sneakerstore/internal/identity"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/lifecycle"
	"github.com/imrishuroy/sneakerstore/internal/logging"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/outbox"
	"github.com/imrishuroy/sneakerstore/internal/payment"
	"github.com/imrishuroy/sneakerstore/internal/subscription"
	"github.com/imrishuroy/sneakerstore/internal/telemetry"
)

func setupRouter(cfg config.Config, deps handlers.Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TelemetryEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.Register(r, deps)

	return r
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.RunLocal)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.RequireAPI(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	shutdown, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
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
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	r := setupRouter(cfg, wire(cfg, clients, pool, logger))

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		// the adapter handles proxying; use adapter.ProxyWithContext for proper context propagation
		return adapter.ProxyWithContext(ctx, req)
	})
}

// wire builds the stores and services behind the routes.
func wire(cfg config.Config, clients *aws.AWSClients, pool db.TxBeginner, logger *zap.Logger) handlers.Deps {
	metrics := aws.NewAnomalyReporter(clients.CloudWatch, cfg.MetricsNamespace, logger)
	jobs := outbox.New(aws.NewPublisher(clients.SQS, cfg.QueueURL), metrics, logger)

	products := catalog.NewRepository(pool)
	discounts := discount.NewRepository(pool)
	validator := discount.NewValidator(discounts)
	profiles := account.NewRepository(pool)
	invoices := invoice.NewRepository(pool)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.IdempotencyTable)
	events := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)

	persister := cart.NewDynamoPersister(clients.DynamoDB, cfg.CartsTable, cfg.CartTTL)
	carts := cart.NewStore(persister, products, validator, logger)

	stripe := payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	auth := identity.NewClient(cfg.AuthBaseURL, cfg.AuthAPIKey, 10*time.Second)
	resolver := identity.NewResolver(auth, profiles, cfg.AuthRefreshTimeout, logger)

	return handlers.Deps{
		Carts:         carts,
		Catalog:       products,
		Discounts:     validator,
		DiscountAdmin: discounts,
		Checkout:      checkout.NewBuilder(resolver, products, validator, stripe, cfg.Currency, cfg.SiteURL, logger),
		Completer: fulfillment.NewCompleter(fulfillment.Deps{
			Orders:   orderStore,
			Catalog:  products,
			Usage:    discounts,
			Invoices: invoices,
			Outbox:   jobs,
			Carts:    carts,
			Sessions: stripe,
			Metrics:  metrics,
			Currency: cfg.Currency,
			Logger:   logger,
		}),
		Webhooks: stripe,
		Events:   events,
		Lifecycle: lifecycle.NewManager(lifecycle.Deps{
			Orders:   orderStore,
			Stock:    products,
			Refunds:  stripe,
			Invoices: invoices,
			Outbox:   jobs,
			Metrics:  metrics,
			Logger:   logger,
		}),
		Orders:        orderStore,
		Profiles:      profiles,
		Auth:          resolver,
		Subscriptions: subscription.NewService(pool, jobs, decimal.NewFromInt(cfg.VIPDiscountPercent), logger),
		Reminders:     cart.NewReminders(persister, jobs, cfg.AbandonedCartAfter, logger),

		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		EventLease:   30 * time.Second,
		Logger:       logger,
	}
}

