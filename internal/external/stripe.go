package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"docgate/internal/types"
)

const stripeAPIBase = "https://api.stripe.com"

// BillingLookup resolves a user into the Stripe customer and email used for
// billing. An empty customer id means no customer has been created yet.
type BillingLookup interface {
	GetBillingInfo(ctx context.Context, userID string) (customerID string, email string, err error)
	UpdateStripeCustomerID(ctx context.Context, userID string, customerID string) error
}

type StripeClientConfig struct {
	SecretKey string
	// BaseURL overrides the API host in tests.
	BaseURL string
	// PriceIDs maps each paid tier to its Stripe price.
	PriceIDs map[types.PlanTier]string
	Logger   *slog.Logger
}

// StripeClient calls the Stripe REST API through BaseClient. It creates
// customers and checkout sessions and reads subscriptions back as
// BillingEvents for the synchronizer.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	users     BillingLookup
	prices    priceBook
	logger    *slog.Logger
}

func NewStripeClient(httpClient *http.Client, users BillingLookup, cfg StripeClientConfig, opts ...BaseClientOption) *StripeClient {
	opts = append([]BaseClientOption{WithUpstreamCode(types.ErrCodeUpstreamStripe)}, opts...)
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"docgate/1.0",
		opts...,
	)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		users:     users,
		prices:    newPriceBook(cfg.PriceIDs),
		logger:    logger,
	}
}

// EnsureCustomer returns the user's Stripe customer, creating one if needed.
// Before creating, it searches by metadata so a lost local write never
// produces a second customer.
func (s *StripeClient) EnsureCustomer(ctx context.Context, userID string) (string, error) {
	customerID, email, err := s.users.GetBillingInfo(ctx, userID)
	if err != nil {
		return "", err
	}
	if customerID != "" {
		return customerID, nil
	}

	var found stripeSearchResult
	query := url.Values{"query": {fmt.Sprintf("metadata['user_id']:'%s'", userID)}}
	if err := s.get(ctx, "EnsureCustomer.search", "/v1/customers/search", query, &found); err != nil {
		return "", err
	}

	if len(found.Data) > 0 {
		customerID = found.Data[0].ID
	} else {
		var created stripeCustomer
		form := url.Values{}
		form.Set("email", email)
		form.Set("metadata[user_id]", userID)
		if err := s.post(ctx, "EnsureCustomer.create", "/v1/customers", form, &created); err != nil {
			return "", err
		}
		customerID = created.ID
	}

	if err := s.users.UpdateStripeCustomerID(ctx, userID, customerID); err != nil {
		s.logger.WarnContext(ctx, "failed to store stripe customer id",
			"user_id", userID,
			"customer_id", customerID,
			"error", err,
		)
	}
	return customerID, nil
}

// CreateCheckoutSession starts a subscription checkout for plan. The user id
// travels as client_reference_id and as subscription metadata so webhook
// events can be tied back to the account.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, userID string, plan types.PlanTier, urls types.RedirectURLs) (checkoutURL string, sessionID string, err error) {
	priceID, ok := s.prices.byPlan[plan]
	if !ok || priceID == "" {
		return "", "", types.NewAppError(types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("plan %q cannot be purchased", plan), nil)
	}

	customerID, err := s.EnsureCustomer(ctx, userID)
	if err != nil {
		return "", "", err
	}

	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("mode", "subscription")
	form.Set("client_reference_id", userID)
	form.Set("success_url", urls.Success)
	form.Set("cancel_url", urls.Cancel)
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[user_id]", userID)
	form.Set("metadata[plan]", string(plan))
	form.Set("subscription_data[metadata][user_id]", userID)

	var session stripeCheckoutSession
	if err := s.post(ctx, "CreateCheckoutSession", "/v1/checkout/sessions", form, &session); err != nil {
		return "", "", err
	}
	return session.URL, session.ID, nil
}

// FetchSubscription reads the current state of a subscription. OccurredAt is
// left zero for the caller to stamp.
func (s *StripeClient) FetchSubscription(ctx context.Context, externalSubscriptionID string) (*types.BillingEvent, error) {
	var sub stripeSubscription
	path := "/v1/subscriptions/" + url.PathEscape(externalSubscriptionID)
	if err := s.get(ctx, "FetchSubscription", path, nil, &sub); err != nil {
		return nil, err
	}
	ev := s.prices.subscriptionEvent(&sub)
	ev.ID = "sync_" + sub.ID
	return &ev, nil
}

func (s *StripeClient) get(ctx context.Context, op, path string, query url.Values, out any) error {
	reqURL := s.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, op+": building request", err)
	}
	return s.send(req, op, out)
}

func (s *StripeClient) post(ctx context.Context, op, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, op+": building request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.send(req, op, out)
}

func (s *StripeClient) send(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stripeResponseError(resp, op)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, op+": undecodable response", err)
	}
	return nil
}

type stripeErrorResponse struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
		Param       string `json:"param"`
	} `json:"error"`
}

func stripeResponseError(resp *http.Response, op string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e stripeErrorResponse
	_ = json.Unmarshal(body, &e)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("%s: stripe resource not found: %s", op, e.Error.Message), nil)
	case resp.StatusCode == http.StatusBadRequest && e.Error.Param != "":
		return types.NewAppError(types.ErrCodeValidationFailed,
			fmt.Sprintf("%s: %s", op, e.Error.Message), nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: stripe returned %d: %s", op, resp.StatusCode, e.Error.Message), nil,
			map[string]any{"stripe_code": e.Error.Code})
	}
}

type stripeCustomer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type stripeSearchResult struct {
	Data []stripeCustomer `json:"data"`
}

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// stripeSubscription covers both API shapes: older versions report the
// billing period on the subscription, newer ones on each item.
type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// priceBook translates between tiers and Stripe price ids.
type priceBook struct {
	byPlan  map[types.PlanTier]string
	byPrice map[string]types.PlanTier
}

func newPriceBook(ids map[types.PlanTier]string) priceBook {
	pb := priceBook{byPlan: map[types.PlanTier]string{}, byPrice: map[string]types.PlanTier{}}
	for plan, id := range ids {
		if id == "" || plan == types.PlanFree {
			continue
		}
		pb.byPlan[plan] = id
		pb.byPrice[id] = plan
	}
	return pb
}

func (pb priceBook) subscriptionEvent(sub *stripeSubscription) types.BillingEvent {
	ev := types.BillingEvent{
		Kind:                   types.BillingSubscriptionUpserted,
		UserID:                 sub.Metadata["user_id"],
		ExternalSubscriptionID: sub.ID,
		ExternalCustomerID:     sub.Customer,
		Status:                 mapStripeStatus(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		TrialStart:             unixPtr(sub.TrialStart),
		TrialEnd:               unixPtr(sub.TrialEnd),
		CurrentPeriodStart:     unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixPtr(sub.CurrentPeriodEnd),
	}
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ev.Plan = pb.byPrice[item.Price.ID]
		if ev.CurrentPeriodEnd == nil {
			ev.CurrentPeriodStart = unixPtr(item.CurrentPeriodStart)
			ev.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		}
	}
	return ev
}

// mapStripeStatus folds Stripe's statuses onto ours. unpaid keeps the
// past_due semantics; incomplete subscriptions never granted access.
func mapStripeStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubscriptionActive
	case "trialing":
		return types.SubscriptionTrialing
	case "past_due", "unpaid":
		return types.SubscriptionPastDue
	case "canceled", "incomplete_expired":
		return types.SubscriptionCanceled
	default:
		return types.SubscriptionNone
	}
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
