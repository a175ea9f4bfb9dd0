package db

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

func activityRow(id string, at time.Time) []any {
	return []any{id, "user_1", nil, "redaction", "redact", "contract.pdf", "completed",
		int64(1200), nil, map[string]any{"pages": float64(3)}, at}
}

func TestActivityRepository_ListByUser_Paginates(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	db := new(mockDBTX)
	rows := newMockRows([][]any{
		activityRow("act_3", now),
		activityRow("act_2", now.Add(-time.Minute)),
		activityRow("act_1", now.Add(-2*time.Minute)),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"user_1", "", 3}).Return(rows, nil)

	items, page, err := NewActivityRepository(db).ListByUser(context.Background(), "user_1", 2, "")
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "act_2", page.NextCursor)
	assert.Equal(t, types.FeatureRedaction, items[0].Type)
	assert.Equal(t, "contract.pdf", items[0].FileName)
	assert.Empty(t, items[0].GuestSessionID)
	assert.True(t, rows.closed)
}

func TestActivityRepository_ListByUser_LastPage(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	db := new(mockDBTX)
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(newMockRows([][]any{activityRow("act_1", now)}), nil)

	items, page, err := NewActivityRepository(db).ListByUser(context.Background(), "user_1", 20, "act_2")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestActivityRepository_ListCreatedBetween_IterationError(t *testing.T) {
	db := new(mockDBTX)
	rows := newMockRows(nil)
	rows.errVal = errors.New("conn reset")
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := NewActivityRepository(db).ListCreatedBetween(context.Background(), time.Now(), time.Now(), "", 100)
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}
