package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the api and the worker read from the environment.
type Config struct {
	ServiceName string
	Port        string
	RunLocal    bool

	// DynamoDB tables and SQS queue
	OrdersTable      string
	IdempotencyTable string
	CartsTable       string
	QueueURL         string
	MetricsNamespace string
	IdempotencyTTL   time.Duration
	CartTTL          time.Duration

	DatabaseURL string

	// Payment provider
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	SiteURL             string

	// Hosted auth service
	AuthBaseURL        string
	AuthAPIKey         string
	AuthRefreshTimeout time.Duration

	// Email
	SendGridAPIKey string
	SendGridHost   string // empty means the public SendGrid API
	EmailFrom      string
	EmailFromName  string
	OperatorEmail  string

	AbandonedCartAfter time.Duration
	VIPDiscountPercent int64

	CookieDomain string
	CookieSecure bool

	OTLPEndpoint     string
	TelemetryEnabled bool
}

// Load reads the configuration from the environment and checks the settings
// without which nothing works.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getenvDefault("SERVICE_NAME", "sneakerstore-api"),
		Port:        getenvDefault("PORT", "8080"),
		RunLocal:    os.Getenv("RUN_LOCAL") == "true",

		OrdersTable:      getenvDefault("ORDERS_TABLE", "orders"),
		IdempotencyTable: getenvDefault("IDEMPOTENCY_TABLE", "idempotency"),
		CartsTable:       getenvDefault("CARTS_TABLE", "carts"),
		QueueURL:         os.Getenv("OUTBOX_QUEUE_URL"),
		MetricsNamespace: getenvDefault("METRICS_NAMESPACE", "Storefront/Reconciliation"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getenvDefault("CURRENCY", "eur")),
		SiteURL:             strings.TrimRight(getenvDefault("SITE_URL", "http://localhost:3000"), "/"),

		AuthBaseURL: strings.TrimRight(os.Getenv("AUTH_BASE_URL"), "/"),
		AuthAPIKey:  os.Getenv("AUTH_API_KEY"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SendGridHost:   strings.TrimRight(os.Getenv("SENDGRID_HOST"), "/"),
		EmailFrom:      getenvDefault("EMAIL_FROM", "orders@example.com"),
		EmailFromName:  getenvDefault("EMAIL_FROM_NAME", "Sneaker Store"),
		OperatorEmail:  os.Getenv("OPERATOR_EMAIL"),

		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		CookieSecure: getenvDefault("COOKIE_SECURE", "true") == "true",

		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryEnabled: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "",
	}

	var err error
	if cfg.IdempotencyTTL, err = getDurationDefault("IDEMPOTENCY_TTL", 48*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.CartTTL, err = getDurationDefault("CART_TTL", 30*24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.AuthRefreshTimeout, err = getDurationDefault("AUTH_REFRESH_TIMEOUT", 3*time.Second); err != nil {
		return cfg, err
	}
	if cfg.AbandonedCartAfter, err = getDurationDefault("ABANDONED_CART_AFTER", 24*time.Hour); err != nil {
		return cfg, err
	}

	pct, err := strconv.ParseInt(getenvDefault("VIP_DISCOUNT_PERCENT", "10"), 10, 64)
	if err != nil || pct <= 0 || pct > 100 {
		return cfg, fmt.Errorf("VIP_DISCOUNT_PERCENT must be an integer in (0,100]")
	}
	cfg.VIPDiscountPercent = pct

	return cfg, nil
}

// RequireAPI checks the settings the HTTP api cannot start without.
func (c Config) RequireAPI() error {
	missing := []string{}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.AuthBaseURL == "" {
		missing = append(missing, "AUTH_BASE_URL")
	}
	if c.QueueURL == "" {
		missing = append(missing, "OUTBOX_QUEUE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireWorker checks the settings the outbox worker cannot start without.
func (c Config) RequireWorker() error {
	missing := []string{}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.SendGridAPIKey == "" {
		missing = append(missing, "SENDGRID_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
