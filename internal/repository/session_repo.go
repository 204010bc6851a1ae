package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatbot-auth/internal/model"
)

// SessionRepository keeps refresh sessions in PostgreSQL, keyed by token digest.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (token_digest, session_id, identity_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		tokenDigest(s.TokenValue), s.SessionID, s.IdentityID, s.CreatedAt, s.ExpiresAt)
	return translateError("create session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
}

func (r *SessionRepository) FindByTokenValue(ctx context.Context, value string) (model.Session, error) {
	s := model.Session{TokenValue: value}
	var rotatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, identity_id, created_at, rotated_at, expires_at
		 FROM auth_sessions
		 WHERE token_digest = $1 AND expires_at > now()`, tokenDigest(value)).
		Scan(&s.SessionID, &s.IdentityID, &s.CreatedAt, &rotatedAt, &s.ExpiresAt)
	if err != nil {
		return model.Session{}, translateError("find session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if rotatedAt.Valid {
		s.RotatedAt = rotatedAt.Time
	}
	return s, nil
}

// FindRotatedFrom returns the live session whose last rotation replaced value.
func (r *SessionRepository) FindRotatedFrom(ctx context.Context, value string) (model.Session, error) {
	var s model.Session
	var rotatedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id, identity_id, created_at, rotated_at, expires_at
		 FROM auth_sessions
		 WHERE previous_digest = $1 AND expires_at > now()`, tokenDigest(value)).
		Scan(&s.SessionID, &s.IdentityID, &s.CreatedAt, &rotatedAt, &s.ExpiresAt)
	if err != nil {
		return model.Session{}, translateError("find rotated session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if rotatedAt.Valid {
		s.RotatedAt = rotatedAt.Time
	}
	s.PreviousDigest = tokenDigest(value)
	return s, nil
}

// Replace swaps the session's token value only if oldValue is still current.
// The conditional UPDATE is the compare-and-swap: of two concurrent callers
// presenting the same oldValue, the second re-evaluates the WHERE clause against
// the committed row and affects nothing.
func (r *SessionRepository) Replace(ctx context.Context, sessionID string, oldValue string, newValue string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auth_sessions
		 SET token_digest = $3, previous_digest = $2, expires_at = $4, rotated_at = $5
		 WHERE session_id = $1 AND token_digest = $2 AND expires_at > now()`,
		sessionID, tokenDigest(oldValue), tokenDigest(newValue), expiresAt, time.Now().UTC())
	if err != nil {
		return translateError("replace session token", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace session token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("replace session token: %w", model.ErrSessionNotFound)
	}
	return nil
}

func (r *SessionRepository) DeleteByTokenValue(ctx context.Context, value string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token_digest = $1`, tokenDigest(value))
	if err != nil {
		return false, translateError("delete session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	removed, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (r *SessionRepository) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE identity_id = $1`, identityID)
	if err != nil {
		return 0, translateError("delete identity sessions", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return rowsAffected(result)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, translateError("delete expired sessions", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return rowsAffected(result)
}

func (r *SessionRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return translateError("ping database", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return nil
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
