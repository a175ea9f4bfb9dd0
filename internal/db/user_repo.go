package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"docgate/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, status, stripe_customer_id,
	last_login_at, created_at, updated_at`

// scanUser scans a row selected with userColumns. name, password_hash and
// stripe_customer_id are nullable.
func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u            types.User
		name         *string
		passwordHash *string
		customerID   *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&name,
		&passwordHash,
		&u.Status,
		&customerID,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Name = deref(name)
	u.PasswordHash = deref(passwordHash)
	u.StripeCustomerID = deref(customerID)
	return &u, nil
}

// Create inserts a new user. A duplicate email yields conflict_email_exists.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		u.ID,
		u.Email,
		nilIfEmpty(u.Name),
		nilIfEmpty(u.PasswordHash),
		u.Status,
		u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return userResult(u, err)
}

// GetByEmail matches case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	return userResult(u, err)
}

func userResult(u *types.User, err error) (*types.User, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update last login", err)
	}
	return nil
}

// GetBillingInfo returns the Stripe customer id (empty when none yet) and
// email for userID.
func (r *UserRepository) GetBillingInfo(ctx context.Context, userID string) (string, string, error) {
	var (
		customerID *string
		email      string
	)
	err := r.db.QueryRow(ctx,
		`SELECT stripe_customer_id, email FROM users WHERE id = $1`, userID,
	).Scan(&customerID, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return "", "", types.NewAppError(types.ErrCodeInternalDB, "failed to read billing info", err)
	}
	return deref(customerID), email, nil
}

func (r *UserRepository) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`,
		userID, customerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store stripe customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
