package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/billing"
	"docgate/internal/types"
)

type fakeActivityLister struct {
	items  []*types.Activity
	page   types.PageInfo
	limit  int
	cursor string
}

func (f *fakeActivityLister) ListByUser(_ context.Context, _ string, limit int, cursor string) ([]*types.Activity, types.PageInfo, error) {
	f.limit, f.cursor = limit, cursor
	return f.items, f.page, nil
}

type fakeUsage struct {
	snap *billing.UsageSnapshot
}

func (f *fakeUsage) CurrentUsage(context.Context, string) (*billing.UsageSnapshot, error) {
	return f.snap, nil
}

func TestListActivity(t *testing.T) {
	lister := &fakeActivityLister{
		items: []*types.Activity{{ID: "act_2", Action: "merge"}, {ID: "act_1", Action: "redact"}},
		page:  types.PageInfo{HasMore: true, NextCursor: "act_1"},
	}
	h := NewDashboardHandler(lister, &fakeUsage{})

	rec := serve(t, h, accountCaller, http.MethodGet, "/activity?limit=2&cursor=act_3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, lister.limit)
	assert.Equal(t, "act_3", lister.cursor)

	var body struct {
		Data []types.Activity `json:"data"`
		Meta struct {
			Pagination types.PageInfo `json:"pagination"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "act_2", body.Data[0].ID)
	assert.Equal(t, types.PageInfo{HasMore: true, NextCursor: "act_1"}, body.Meta.Pagination)
}

func TestListActivity_EmptyIsArray(t *testing.T) {
	lister := &fakeActivityLister{}
	rec := serve(t, NewDashboardHandler(lister, &fakeUsage{}), accountCaller, http.MethodGet, "/activity", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultActivityLimit, lister.limit)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestListActivity_InvalidLimit(t *testing.T) {
	for _, q := range []string{"0", "101", "ten"} {
		rec := serve(t, NewDashboardHandler(&fakeActivityLister{}, &fakeUsage{}), accountCaller, http.MethodGet, "/activity?limit="+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDashboard_RequiresAccount(t *testing.T) {
	h := NewDashboardHandler(&fakeActivityLister{}, &fakeUsage{})
	for _, path := range []string{"/activity", "/usage"} {
		rec := serve(t, h, guestCaller, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestGetUsage(t *testing.T) {
	start := testNow.AddDate(0, 0, -3)
	usage := &fakeUsage{snap: &billing.UsageSnapshot{
		Plan:        types.PlanSolo,
		HasAccess:   true,
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
	}}

	rec := serve(t, NewDashboardHandler(&fakeActivityLister{}, usage), accountCaller, http.MethodGet, "/usage", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap billing.UsageSnapshot
	decodeData(t, rec, &snap)
	assert.Equal(t, types.PlanSolo, snap.Plan)
	assert.True(t, snap.HasAccess)
	assert.True(t, snap.PeriodStart.Equal(start))
	assert.WithinDuration(t, start.AddDate(0, 1, 0), snap.PeriodEnd, time.Second)
}
