package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

type mockSubReader struct {
	mock.Mock
}

func (m *mockSubReader) GetByUserID(ctx context.Context, userID string) (*types.SubscriptionRecord, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*types.SubscriptionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) SumByFeature(ctx context.Context, userID string, start, end time.Time) (map[types.Feature]int64, error) {
	args := m.Called(ctx, userID, start, end)
	if s := args.Get(0); s != nil {
		return s.(map[types.Feature]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

var reportNow = time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)

func TestCurrentUsage_ActiveSubscriptionUsesBillingPeriod(t *testing.T) {
	subs := new(mockSubReader)
	agg := new(mockAggregator)
	start := reportNow.Add(-10 * 24 * time.Hour)
	end := reportNow.Add(20 * 24 * time.Hour)
	subs.On("GetByUserID", mock.Anything, "usr_1").Return(&types.SubscriptionRecord{
		Plan: types.PlanSolo, Status: types.SubscriptionActive,
		CurrentPeriodStart: &start, CurrentPeriodEnd: &end,
	}, nil)
	agg.On("SumByFeature", mock.Anything, "usr_1", start, end).
		Return(map[types.Feature]int64{types.FeatureRedaction: 42, types.FeatureMerge: 7}, nil)

	r := NewReporter(subs, agg, MustDefaultCatalog(), 0, types.FixedClock{T: reportNow})
	snap, err := r.CurrentUsage(context.Background(), "usr_1")
	require.NoError(t, err)

	assert.Equal(t, types.PlanSolo, snap.Plan)
	assert.True(t, snap.HasAccess)
	assert.Equal(t, start, snap.PeriodStart)
	require.Len(t, snap.Features, 2)
	assert.Equal(t, FeatureUsage{Feature: types.FeatureRedaction, Used: 42, Limit: 100}, snap.Features[0])
	assert.Equal(t, FeatureUsage{Feature: types.FeatureMerge, Used: 7, Limit: Unbounded, Unbounded: true}, snap.Features[1])
	subs.AssertExpectations(t)
	agg.AssertExpectations(t)
}

func TestCurrentUsage_NoSubscriptionUsesFreeAndCalendarMonth(t *testing.T) {
	subs := new(mockSubReader)
	agg := new(mockAggregator)
	monthStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	subs.On("GetByUserID", mock.Anything, "usr_2").Return(nil, nil)
	agg.On("SumByFeature", mock.Anything, "usr_2", monthStart, monthStart.AddDate(0, 1, 0)).
		Return(map[types.Feature]int64{}, nil)

	r := NewReporter(subs, agg, MustDefaultCatalog(), 0, types.FixedClock{T: reportNow})
	snap, err := r.CurrentUsage(context.Background(), "usr_2")
	require.NoError(t, err)

	assert.Equal(t, types.PlanFree, snap.Plan)
	assert.False(t, snap.HasAccess)
	assert.Equal(t, int64(5), snap.Features[0].Limit)
	assert.Equal(t, int64(0), snap.Features[0].Used)
}

func TestCurrentUsage_StoreError(t *testing.T) {
	subs := new(mockSubReader)
	boom := types.NewAppError(types.ErrCodeInternalDB, "db down", errors.New("conn refused"))
	subs.On("GetByUserID", mock.Anything, "usr_3").Return(nil, boom)

	r := NewReporter(subs, new(mockAggregator), MustDefaultCatalog(), 0, types.FixedClock{T: reportNow})
	_, err := r.CurrentUsage(context.Background(), "usr_3")
	assert.ErrorIs(t, err, boom)
}
