package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestSubscriptionRecordAccessWindows(t *testing.T) {
	trial := &SubscriptionRecord{Status: SubscriptionTrialing, TrialEnd: ptr(now.Add(time.Hour))}
	assert.True(t, trial.TrialActive(now))
	assert.False(t, trial.TrialActive(now.Add(2*time.Hour)))
	assert.False(t, trial.PeriodActive(now))

	active := &SubscriptionRecord{Status: SubscriptionActive, CurrentPeriodEnd: ptr(now.Add(24 * time.Hour))}
	assert.True(t, active.PeriodActive(now))
	assert.False(t, active.PeriodActive(now.Add(48*time.Hour)))

	noEnd := &SubscriptionRecord{Status: SubscriptionActive}
	assert.False(t, noEnd.PeriodActive(now))

	free := FreeSubscription("usr_1")
	assert.Equal(t, PlanFree, free.Plan)
	assert.Equal(t, SubscriptionNone, free.Status)
}

func TestGuestSessionCountAndExpiry(t *testing.T) {
	g := &GuestSession{RedactionCount: 2, MergeCount: 1, ExpiresAt: now}
	assert.Equal(t, 2, g.Count(FeatureRedaction))
	assert.Equal(t, 1, g.Count(FeatureMerge))
	assert.Equal(t, 0, g.Count(FeatureSplit))

	assert.False(t, g.Expired(now), "expiry is inclusive of the boundary instant")
	assert.True(t, g.Expired(now.Add(time.Nanosecond)))
}

func TestPrincipalValidate(t *testing.T) {
	require.NoError(t, AccountPrincipal("usr_1", "").Validate())
	require.NoError(t, GuestPrincipal("", "1.2.3.4").Validate())
	require.NoError(t, GuestPrincipal("gs_1", "2001:db8::1").Validate())

	assert.Equal(t, ErrCodeAuthPrincipalUnresolved, CodeOf(Principal{}.Validate()))
	assert.Equal(t, ErrCodeAuthPrincipalUnresolved, CodeOf(AccountPrincipal("", "").Validate()))
	assert.Equal(t, ErrCodeValidationInvalidIP, CodeOf(GuestPrincipal("gs_1", "not-an-ip").Validate()))

	both := Principal{Kind: PrincipalAccount, UserID: "usr_1", GuestSessionID: "gs_1"}
	assert.Error(t, both.Validate())
}

func TestPrincipalRateLimitKey(t *testing.T) {
	assert.Equal(t, "user:usr_1", AccountPrincipal("usr_1", "1.1.1.1").RateLimitKey())
	assert.Equal(t, "guest:gs_1", GuestPrincipal("gs_1", "1.1.1.1").RateLimitKey())
	assert.Equal(t, "ip:1.1.1.1", GuestPrincipal("", "1.1.1.1").RateLimitKey())
}

func TestDecisionErr(t *testing.T) {
	assert.Nil(t, Decision{Allowed: true, Reason: ReasonOK}.Err())

	err := Decision{Reason: ReasonGuestLimitExceeded, Feature: FeatureMerge, Current: 3, Limit: 3}.Err()
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeGuestLimitExceeded, err.Code)
	assert.Equal(t, 403, err.HTTPStatus())
	assert.Equal(t, int64(3), err.Details["max"])
	assert.NotEmpty(t, err.Message)

	noSub := Decision{Reason: ReasonNoSubscription, Feature: FeatureAutoDetectPII}.Err()
	assert.NotContains(t, noSub.Details, "max")
}

func TestParseEnums(t *testing.T) {
	p, err := ParsePlanTier("firm")
	require.NoError(t, err)
	assert.Equal(t, PlanFirm, p)

	_, err = ParsePlanTier("Solo")
	assert.Equal(t, ErrCodeValidationInvalidPlan, CodeOf(err))

	f, err := ParseFeature("autoDetectPii")
	require.NoError(t, err)
	assert.Equal(t, FeatureAutoDetectPII, f)

	_, err = ParseFeature("ocr")
	assert.Equal(t, ErrCodeValidationInvalidFeature, CodeOf(err))

	assert.True(t, SubscriptionPastDue.Valid())
	assert.False(t, SubscriptionStatus("paused").Valid())
}
