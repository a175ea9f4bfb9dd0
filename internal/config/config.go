// Package config defines the process configuration for the docgate services.
// Configuration is loaded once at startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"docgate/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"docgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Billing       BillingConfig
	Engine        EngineConfig
	Guest         GuestConfig
	Entitlement   EntitlementConfig
	Auth          AuthConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	DashboardURL string        `envconfig:"DASHBOARD_URL" validate:"required,url"`
	Timeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	MigrationsTable   string        `envconfig:"DB_MIGRATIONS_TABLE" default:"schema_migrations"`
}

// RedisConfig configures the rate limit store. An empty URL disables Redis
// and rate limiting fails open.
type RedisConfig struct {
	URL         SecretString  `envconfig:"REDIS_URL"`
	ConnectWait time.Duration `envconfig:"REDIS_CONNECT_WAIT" default:"5s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// FilesBucket holds uploads/ and temp/ objects written by the upload
	// pipeline and archive/ objects written by the activity exporter.
	FilesBucket string `envconfig:"FILES_BUCKET" validate:"required"`

	// S3Endpoint points the S3 client at an S3-compatible store such as R2
	// or LocalStack. Empty in AWS.
	S3Endpoint string `envconfig:"S3_ENDPOINT"`

	// ActivityQueueURL enables asynchronous activity recording via SQS.
	// When empty, activity is written directly to the database.
	ActivityQueueURL string `envconfig:"SQS_ACTIVITY" validate:"omitempty,url"`
}

// BillingConfig holds Stripe credentials and the price IDs for each paid tier.
type BillingConfig struct {
	StripeSecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	PriceSolo           string        `envconfig:"STRIPE_PRICE_SOLO" validate:"required"`
	PriceFirm           string        `envconfig:"STRIPE_PRICE_FIRM" validate:"required"`
	PriceEnterprise     string        `envconfig:"STRIPE_PRICE_ENTERPRISE" validate:"required"`
	SyncTimeout         time.Duration `envconfig:"STRIPE_SYNC_TIMEOUT" default:"5s"`
	SyncStaleness       time.Duration `envconfig:"STRIPE_SYNC_STALENESS" default:"24h"`
}

// PriceIDs returns the tier to Stripe price mapping.
func (b BillingConfig) PriceIDs() map[types.PlanTier]string {
	return map[types.PlanTier]string{
		types.PlanSolo:       b.PriceSolo,
		types.PlanFirm:       b.PriceFirm,
		types.PlanEnterprise: b.PriceEnterprise,
	}
}

// EngineConfig locates the PDF processing service.
type EngineConfig struct {
	BaseURL      string        `envconfig:"PDF_ENGINE_URL" validate:"required,url"`
	Timeout      time.Duration `envconfig:"PDF_ENGINE_TIMEOUT" default:"120s"`
	MaxFileBytes int64         `envconfig:"PDF_ENGINE_MAX_FILE_BYTES" default:"52428800"`
}

// GuestConfig holds anonymous usage limits.
type GuestConfig struct {
	MaxRedactions  int           `envconfig:"GUEST_MAX_REDACTIONS" default:"3" validate:"min=0"`
	MaxMerges      int           `envconfig:"GUEST_MAX_MERGES" default:"3" validate:"min=0"`
	MaxFileBytes   int64         `envconfig:"GUEST_MAX_FILE_BYTES" default:"5242880" validate:"min=1"`
	SessionTTL     time.Duration `envconfig:"GUEST_SESSION_TTL" default:"24h"`
	AuditRetention time.Duration `envconfig:"GUEST_AUDIT_RETENTION" default:"720h"`
}

// EntitlementConfig tunes access policy.
type EntitlementConfig struct {
	// PastDueGrace keeps past_due subscriptions entitled for this long after
	// currentPeriodEnd. Zero disables the grace window.
	PastDueGrace time.Duration `envconfig:"PAST_DUE_GRACE" default:"0s"`
}

// AuthConfig holds dashboard session settings.
type AuthConfig struct {
	SessionDuration time.Duration `envconfig:"SESSION_DURATION" default:"168h"`
	CookieSecure    bool          `envconfig:"COOKIE_SECURE" default:"true"`
	CookieDomain    string        `envconfig:"COOKIE_DOMAIN"`
}

// SecurityConfig holds traffic protection settings.
type SecurityConfig struct {
	CorsAllowedOrigins       []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RateLimitPerMinute       int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	GuestRateLimitPerMinute  int           `envconfig:"GUEST_RATE_LIMIT_PER_MINUTE" default:"30"`
	IPBlockThreshold         int           `envconfig:"IP_BLOCK_THRESHOLD" default:"100"`
	IdentifierBlockThreshold int           `envconfig:"IDENTIFIER_BLOCK_THRESHOLD" default:"5"`
	BlockWindow              time.Duration `envconfig:"BLOCK_WINDOW" default:"15m"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"DocGate"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
