package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	stripe "github.com/stripe/stripe-go/v82"
)

// ValidationResult is a pass/fail verdict with an operator-facing message.
type ValidationResult struct {
	Valid   bool
	Message string
}

// HTTPClient performs outbound checks.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a connection to dsn.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// RedisPinger opens a client for opts, pings it and closes it.
type RedisPinger interface {
	Ping(ctx context.Context, opts *redis.Options) error
}

type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

type GoRedisPinger struct{}

func (GoRedisPinger) Ping(ctx context.Context, opts *redis.Options) error {
	client := redis.NewClient(opts)
	defer client.Close()
	return client.Ping(ctx).Err()
}

// Validator actively verifies operator input before it is stored.
type Validator struct {
	httpClient    HTTPClient
	dbConn        DatabaseConnector
	redis         RedisPinger
	stripeBaseURL string
}

func NewValidator() *Validator {
	return &Validator{
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		dbConn:        &PgxConnector{},
		redis:         GoRedisPinger{},
		stripeBaseURL: "https://api.stripe.com",
	}
}

// NewValidatorWithDeps is used by tests; nil dependencies are only safe for
// validators that do not call out.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, pinger RedisPinger) *Validator {
	return &Validator{
		httpClient:    httpClient,
		dbConn:        dbConn,
		redis:         pinger,
		stripeBaseURL: "https://api.stripe.com",
	}
}

// validateTimeout bounds each check including DNS and TLS.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL checks the scheme and host, then connects once.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "database URL must not be empty"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid URL format: %v", err)}
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme),
		}
	}
	if parsed.Hostname() == "" {
		return ValidationResult{Valid: false, Message: "database URL has no host"}
	}
	if parsed.Query().Get("sslmode") == "disable" {
		return ValidationResult{Valid: false, Message: "sslmode=disable is only allowed for local databases"}
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("connection failed: %v", err)}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("database connection verified (host=%s)", parsed.Hostname()),
	}
}

// ValidateRedisURL parses a redis:// or rediss:// URL and pings the server.
func (v *Validator) ValidateRedisURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ValidationResult{Valid: false, Message: "Redis URL must not be empty"}
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid Redis URL: %v", err)}
	}

	pingCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	if err := v.redis.Ping(pingCtx, opts); err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("Redis ping failed: %v", err)}
	}

	tls := ""
	if opts.TLSConfig != nil {
		tls = ", tls"
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("Redis reachable (addr=%s%s)", opts.Addr, tls)}
}

var stripeKeyRegex = regexp.MustCompile(`^(sk|rk)_(test|live)_[0-9a-zA-Z]{24,}$`)

// ValidateStripeKey checks the key format, then calls GET /v1/account,
// which has no side effects.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Stripe secret key must not be empty"}
	}
	if !stripeKeyRegex.MatchString(key) {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe secret key must match format (sk|rk)_(test|live)_[alphanumeric 24+ chars]",
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, v.stripeBaseURL+"/v1/account", nil)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	req.Header.Set("User-Agent", "docgate-bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("Stripe API check failed: %v", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe API returned 401 Unauthorized: key is invalid or revoked",
		}
	}
	if resp.StatusCode != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}

	var account struct {
		ID              string `json:"id"`
		BusinessProfile struct {
			Name string `json:"name"`
		} `json:"business_profile"`
	}
	displayInfo := ""
	if err := json.Unmarshal(body, &account); err == nil {
		if account.BusinessProfile.Name != "" {
			displayInfo = fmt.Sprintf(" (account: %s, name: %s)", account.ID, account.BusinessProfile.Name)
		} else if account.ID != "" {
			displayInfo = fmt.Sprintf(" (account: %s)", account.ID)
		}
	}

	mode := "test"
	if strings.Contains(key, "_live_") {
		mode = "live"
	}
	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Stripe key verified [%s mode]%s", mode, displayInfo),
	}
}

// ValidateRegex is the fallback for values that cannot be verified live, such as
// webhook secrets and price ids.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("%s must not be empty", fieldName)}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return ValidationResult{Valid: false, Message: fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)}
	}
	if !re.MatchString(input) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("%s does not match expected format (pattern: %s)", fieldName, pattern),
		}
	}
	return ValidationResult{Valid: true, Message: fmt.Sprintf("%s format validated", fieldName)}
}

func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
