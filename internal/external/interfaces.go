package external

import (
	"context"
	"encoding/json"
	"io"

	"docgate/internal/types"
)

// BillingService is the payments provider as seen by handlers and the
// subscription synchronizer.
type BillingService interface {
	EnsureCustomer(ctx context.Context, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, userID string, plan types.PlanTier, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error)
	FetchSubscription(ctx context.Context, externalSubscriptionID string) (*types.BillingEvent, error)
}

// WebhookParser authenticates and decodes provider webhooks. A nil event
// with a nil error means the event is irrelevant.
type WebhookParser interface {
	Parse(payload []byte, sigHeader string) (*types.BillingEvent, error)
}

// PDFEngine runs document operations.
type PDFEngine interface {
	Process(ctx context.Context, op EngineOperation, body any) (json.RawMessage, error)
	Ping(ctx context.Context) error
}

// ObjectStore reads and writes objects in the files bucket.
type ObjectStore interface {
	ObjectSize(ctx context.Context, key string) (int64, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

var (
	_ BillingService = (*StripeClient)(nil)
	_ WebhookParser  = (*StripeWebhook)(nil)
	_ PDFEngine      = (*EngineClient)(nil)
	_ ObjectStore    = (*S3Store)(nil)
)
