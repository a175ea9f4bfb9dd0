package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"docgate/internal/types"
)

// SessionRepository stores dashboard login sessions.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *types.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, csrf_token, ip_address, user_agent, expires_at, last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID,
		s.UserID,
		s.CSRFToken,
		nilIfEmpty(s.IPAddress),
		nilIfEmpty(s.UserAgent),
		s.ExpiresAt,
		s.LastActivityAt,
		s.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create session", err)
	}
	return nil
}

// GetByID returns the session regardless of expiry; callers check ExpiresAt.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*types.Session, error) {
	var (
		s         types.Session
		ip, agent *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, csrf_token, ip_address, user_agent, expires_at, last_activity_at, created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.UserID, &s.CSRFToken, &ip, &agent, &s.ExpiresAt, &s.LastActivityAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "session not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve session", err)
	}
	s.IPAddress = deref(ip)
	s.UserAgent = deref(agent)
	return &s, nil
}

// Touch slides the expiry forward on activity.
func (r *SessionRepository) Touch(ctx context.Context, id string, at, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $2, expires_at = $3 WHERE id = $1`,
		id, at, expiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to extend session", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete session", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before cutoff and returns the
// number removed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sweep sessions", err)
	}
	return tag.RowsAffected(), nil
}
