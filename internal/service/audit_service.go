package service

import (
	"context"
	"log/slog"
	"time"

	"chatbot-auth/internal/event"
	"chatbot-auth/internal/model"
)

const auditWriteTimeout = 2 * time.Second

// AuditService persists security events published on the bus and answers
// history queries for an identity.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
}

func NewAuditService(store AuditStore, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{store: store, logger: logger.With("component", "audit")}
}

// Run consumes events until ctx is cancelled or the subscription closes.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.Handle(ctx, e)
		}
	}
}

func (s *AuditService) Handle(ctx context.Context, e event.Event) {
	level := slog.LevelInfo
	switch e.Type {
	case event.TypeSessionReuseDetected, event.TypeLoginFailed, event.TypeRefreshRejected:
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "security event",
		"type", e.Type,
		"identity_id", e.IdentityID,
		"session_id", e.SessionID,
		"reason", e.Reason,
		"client_ip", e.ClientIP,
	)

	if s.store == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	err := s.store.Log(writeCtx, model.AuthEvent{
		ID:         e.ID,
		Type:       string(e.Type),
		IdentityID: e.IdentityID,
		SessionID:  e.SessionID,
		Reason:     e.Reason,
		ClientIP:   e.ClientIP,
		OccurredAt: e.Timestamp,
	})
	if err != nil {
		s.logger.Error("persist security event failed", "type", e.Type, "event_id", e.ID, "error", err)
	}
}

func (s *AuditService) ListForIdentity(ctx context.Context, identityID string, limit int) ([]model.AuthEvent, error) {
	if s.store == nil {
		return []model.AuthEvent{}, nil
	}
	events, err := s.store.ListForIdentity(ctx, identityID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return events, nil
}
