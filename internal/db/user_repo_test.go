package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgate/internal/types"
)

func TestUserRepository_Create(t *testing.T) {
	u := &types.User{ID: "user_1", Email: "a@example.com", Status: types.UserStatusActive, CreatedAt: time.Now()}

	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
		require.NoError(t, NewUserRepository(db).Create(context.Background(), u))
	})

	t.Run("duplicate email", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})
		err := NewUserRepository(db).Create(context.Background(), u)
		assert.Equal(t, types.ErrCodeConflictEmail, types.CodeOf(err))
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"A@Example.com"}).
		Return(&mockRow{values: []any{"user_1", "a@example.com", "Ada", "hash", "active", nil, nil, now, now}})

	u, err := NewUserRepository(db).GetByEmail(context.Background(), "A@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "user_1", u.ID)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.Empty(t, u.StripeCustomerID)
	assert.Nil(t, u.LastLoginAt)
}

func TestUserRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := NewUserRepository(db).GetByID(context.Background(), "user_missing")
	assert.Equal(t, types.ErrCodeNotFoundUser, types.CodeOf(err))
}

func TestUserRepository_GetBillingInfo(t *testing.T) {
	db := new(mockDBTX)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"user_1"}).
		Return(&mockRow{values: []any{"cus_9", "a@example.com"}})

	cust, email, err := NewUserRepository(db).GetBillingInfo(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, "cus_9", cust)
	assert.Equal(t, "a@example.com", email)
}

func TestUserRepository_UpdateStripeCustomerID(t *testing.T) {
	t.Run("missing user", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)
		err := NewUserRepository(db).UpdateStripeCustomerID(context.Background(), "user_1", "cus_1")
		assert.Equal(t, types.ErrCodeNotFoundUser, types.CodeOf(err))
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("boom"))
		err := NewUserRepository(db).UpdateStripeCustomerID(context.Background(), "user_1", "cus_1")
		assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
	})
}
