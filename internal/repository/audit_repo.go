package repository

import (
	"context"
	"database/sql"
	"fmt"

	"chatbot-auth/internal/model"
)

const maxEventPage = 200

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, e model.AuthEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_events (id, type, identity_id, session_id, reason, client_ip, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Type, nullString(e.IdentityID), nullString(e.SessionID),
		nullString(e.Reason), nullString(e.ClientIP), e.OccurredAt)
	if err != nil {
		return translateError("log auth event", err, model.ErrUserNotFound, model.ErrConflict)
	}
	return nil
}

// ListForIdentity returns the most recent events of one identity, newest first.
func (r *AuditRepository) ListForIdentity(ctx context.Context, identityID string, limit int) ([]model.AuthEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, identity_id, session_id, reason, client_ip, occurred_at
		 FROM auth_events
		 WHERE identity_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, identityID, limit)
	if err != nil {
		return nil, translateError("list auth events", err, model.ErrUserNotFound, model.ErrConflict)
	}
	defer rows.Close()

	events := make([]model.AuthEvent, 0)
	for rows.Next() {
		var e model.AuthEvent
		var identity, session, reason, ip sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &identity, &session, &reason, &ip, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}
		e.IdentityID = identity.String
		e.SessionID = session.String
		e.Reason = reason.String
		e.ClientIP = ip.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
