package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatbot-auth/internal/model"
)

// SessionStore is the durable refresh-token map. Replace is the only
// rotation mutation and must be an atomic compare-and-swap.
type SessionStore interface {
	Create(ctx context.Context, session model.Session) error
	FindByTokenValue(ctx context.Context, value string) (model.Session, error)
	FindRotatedFrom(ctx context.Context, value string) (model.Session, error)
	Replace(ctx context.Context, sessionID string, oldValue string, newValue string, expiresAt time.Time) error
	DeleteByTokenValue(ctx context.Context, value string) (bool, error)
	DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.Identity, error)
	FindByEmail(ctx context.Context, email string) (model.Identity, error)
	FindByNameCaseInsensitive(ctx context.Context, name string) (model.Identity, error)
	Create(ctx context.Context, identity model.Identity) error
}

type AuditStore interface {
	Log(ctx context.Context, e model.AuthEvent) error
	ListForIdentity(ctx context.Context, identityID string, limit int) ([]model.AuthEvent, error)
}

type clientIPKey struct{}

// WithClientIP attaches the caller address recorded on security events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// unavailable folds context expiry into ErrUnavailable. Errors the store
// already translated are returned as they are.
func unavailable(err error) error {
	if err == nil || errors.Is(err, model.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", model.ErrUnavailable, err)
	}
	return err
}
