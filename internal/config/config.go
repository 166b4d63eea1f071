package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// May be populated from Secret Manager instead; see SecretManagerProject.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Storage for processed output files (S3-compatible).
	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	// External PDF processing service.
	PDFServiceBaseURL    string `envconfig:"PDF_SERVICE_BASE_URL" required:"true"`
	PDFRequestTimeoutSec int    `envconfig:"PDF_REQUEST_TIMEOUT_SEC" default:"120"`

	// Stripe settings
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripePriceMonthly    string `envconfig:"STRIPE_PRICE_MONTHLY"`
	StripePriceAnnual     string `envconfig:"STRIPE_PRICE_ANNUAL"`
	StripePriceFree       string `envconfig:"STRIPE_PRICE_FREE" default:"free"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/dashboard"`

	// Usage quota settings. Free tier gets a fixed number of operations per
	// UTC calendar day; pro is unlimited.
	FreeDailyOperations int `envconfig:"FREE_DAILY_OPERATIONS" default:"5"`

	// Operations stuck in 'processing' longer than this are swept to 'failed'.
	OperationStaleAfterMin int `envconfig:"OPERATION_STALE_AFTER_MIN" default:"15"`
	OperationSweepEveryMin int `envconfig:"OPERATION_SWEEP_EVERY_MIN" default:"5"`

	// Optional shared rate-limit store. When empty, each process keeps its own
	// in-memory counters (advisory only behind a load balancer).
	RedisURL string `envconfig:"REDIS_URL"`

	// Optional Pub/Sub topic for operation lifecycle events. Empty disables
	// publishing.
	GCPProjectID        string `envconfig:"GCP_PROJECT_ID"`
	OperationEventTopic string `envconfig:"OPERATION_EVENT_TOPIC"`

	// When set, Stripe and JWT secrets are fetched from GCP Secret Manager
	// instead of the environment.
	SecretManagerProject string `envconfig:"SECRET_MANAGER_PROJECT"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
