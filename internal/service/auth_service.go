package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatbot-auth/internal/event"
	"chatbot-auth/internal/metrics"
	"chatbot-auth/internal/model"
	"chatbot-auth/internal/password"
	"chatbot-auth/internal/token"
)

const (
	defaultStoreTimeout = 3 * time.Second
	sessionIDBytes      = 32
)

type AuthOptions struct {
	StoreTimeout  time.Duration
	RevokeOnReuse bool
	// RotationGrace is how long a just-rotated value is treated as a lost
	// concurrent refresh instead of a replay. Zero disables it.
	RotationGrace time.Duration
}

// AuthService owns the session lifecycle: issuing sessions on login and
// registration, rotating refresh tokens, detecting replayed tokens and
// revoking sessions.
type AuthService struct {
	users       UserStore
	sessions    SessionStore
	codec       *token.Codec
	hasher      *password.Hasher
	credentials *CredentialVerifier
	bus         event.Bus
	metrics     *metrics.Auth
	opts        AuthOptions
	now         func() time.Time
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	codec *token.Codec,
	hasher *password.Hasher,
	bus event.Bus,
	m *metrics.Auth,
	opts AuthOptions,
) (*AuthService, error) {
	credentials, err := NewCredentialVerifier(users, hasher)
	if err != nil {
		return nil, err
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if m == nil {
		m = metrics.New()
	}

	return &AuthService{
		users:       users,
		sessions:    sessions,
		codec:       codec,
		hasher:      hasher,
		credentials: credentials,
		bus:         bus,
		metrics:     m,
		opts:        opts,
		now:         time.Now,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, name string, secret string) (model.AuthResult, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || name == "" || secret == "" {
		return model.AuthResult{}, fmt.Errorf("%w: email, name and password are required", model.ErrInvalidInput)
	}

	conflict := &model.ConflictError{}
	taken, err := s.exists(ctx, func(ctx context.Context) (model.Identity, error) {
		return s.users.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.AuthResult{}, err
	}
	if taken {
		conflict.Fields = append(conflict.Fields, "email")
	}

	taken, err = s.exists(ctx, func(ctx context.Context) (model.Identity, error) {
		return s.users.FindByNameCaseInsensitive(ctx, name)
	})
	if err != nil {
		return model.AuthResult{}, err
	}
	if taken {
		conflict.Fields = append(conflict.Fields, "name")
	}
	if len(conflict.Fields) > 0 {
		return model.AuthResult{}, conflict
	}

	hash, err := s.hasher.Hash(secret)
	if errors.Is(err, password.ErrTooLong) {
		return model.AuthResult{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	now := s.now().UTC()
	identity := model.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         model.RoleUser,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	storeCtx, cancel := s.storeContext(ctx)
	err = s.users.Create(storeCtx, identity)
	cancel()
	if err != nil {
		return model.AuthResult{}, unavailable(err)
	}

	return s.createSession(ctx, identity, "register")
}

func (s *AuthService) Login(ctx context.Context, email string, secret string) (model.AuthResult, error) {
	storeCtx, cancel := s.storeContext(ctx)
	identity, err := s.credentials.VerifyCredentials(storeCtx, email, secret)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			s.metrics.LoginFailures.Inc()
			s.publish(ctx, event.TypeLoginFailed, "", "", "invalid_credentials")
		}
		return model.AuthResult{}, err
	}

	return s.createSession(ctx, identity, "login")
}

// Refresh rotates a refresh token. The presented value stops working as soon
// as the rotation is stored; presenting it again is treated as replay.
func (s *AuthService) Refresh(ctx context.Context, refreshValue string) (model.AuthResult, error) {
	if strings.TrimSpace(refreshValue) == "" {
		return s.rejectRefresh(ctx, nil, model.ErrMissingToken)
	}

	claims, err := s.codec.VerifyRefresh(refreshValue)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return s.rejectRefresh(ctx, nil, model.ErrTokenExpired)
		}
		return s.rejectRefresh(ctx, nil, model.ErrTokenInvalid)
	}

	storeCtx, cancel := s.storeContext(ctx)
	record, err := s.sessions.FindByTokenValue(storeCtx, refreshValue)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			if s.rotatedWithinGrace(ctx, refreshValue, claims) {
				return s.rejectRefresh(ctx, claims, model.ErrRotationLost)
			}
			s.handleReuse(ctx, claims)
			return s.rejectRefresh(ctx, claims, model.ErrSessionNotFound)
		}
		return model.AuthResult{}, unavailable(err)
	}

	if claims.SessionID != record.SessionID || claims.Subject != record.IdentityID {
		slog.Warn("refresh token session mismatch", "session_id", record.SessionID, "identity_id", record.IdentityID)
		return s.rejectRefresh(ctx, claims, model.ErrTokenIDMismatch)
	}

	storeCtx, cancel = s.storeContext(ctx)
	identity, err := s.users.FindByID(storeCtx, record.IdentityID)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return s.rejectRefresh(ctx, claims, model.ErrTokenInvalid)
		}
		return model.AuthResult{}, unavailable(err)
	}

	refresh, err := s.codec.IssueRefreshToken(identity.ID, record.SessionID)
	if err != nil {
		return model.AuthResult{}, err
	}

	storeCtx, cancel = s.storeContext(ctx)
	err = s.sessions.Replace(storeCtx, record.SessionID, refreshValue, refresh.Value, refresh.ExpiresAt)
	cancel()
	if err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return s.rejectRefresh(ctx, claims, model.ErrRotationLost)
		}
		return model.AuthResult{}, unavailable(err)
	}

	access, err := s.codec.IssueAccessToken(identity)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.metrics.RefreshOutcomes.WithLabelValues("rotated").Inc()
	s.publish(ctx, event.TypeSessionRotated, identity.ID, record.SessionID, "")

	return model.AuthResult{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        record.SessionID,
		User:             identity.Public(),
	}, nil
}

// Logout deletes the session behind refreshValue. Missing records and
// unverifiable values are not errors; only a real deletion is counted and
// published.
func (s *AuthService) Logout(ctx context.Context, refreshValue string) error {
	if strings.TrimSpace(refreshValue) == "" {
		return nil
	}

	storeCtx, cancel := s.storeContext(ctx)
	removed, err := s.sessions.DeleteByTokenValue(storeCtx, refreshValue)
	cancel()
	if err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		return unavailable(err)
	}
	if !removed {
		return nil
	}

	var identityID, sessionID string
	if claims, verr := s.codec.VerifyRefresh(refreshValue); verr == nil {
		identityID, sessionID = claims.Subject, claims.SessionID
	}
	s.metrics.SessionsRevoked.WithLabelValues("logout").Inc()
	s.publish(ctx, event.TypeSessionRevoked, identityID, sessionID, "logout")
	return nil
}

// LogoutAll deletes every session the caller holds, this one included.
func (s *AuthService) LogoutAll(ctx context.Context, identityID string) (int64, error) {
	return s.revokeAll(ctx, identityID, "logout_all")
}

// RevokeIdentity force-logs-out another identity.
func (s *AuthService) RevokeIdentity(ctx context.Context, identityID string) (int64, error) {
	storeCtx, cancel := s.storeContext(ctx)
	_, err := s.users.FindByID(storeCtx, identityID)
	cancel()
	if err != nil {
		return 0, unavailable(err)
	}
	return s.revokeAll(ctx, identityID, "admin")
}

func (s *AuthService) CurrentUser(ctx context.Context, identityID string) (model.AuthUser, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	identity, err := s.users.FindByID(storeCtx, identityID)
	if err != nil {
		return model.AuthUser{}, unavailable(err)
	}
	return identity.Public(), nil
}

// VerifyAccessToken resolves an access token without touching any store.
func (s *AuthService) VerifyAccessToken(value string) (*model.AuthClaims, error) {
	if strings.TrimSpace(value) == "" {
		return nil, model.Unauthorized(model.ErrMissingToken)
	}

	claims, err := s.codec.VerifyAccess(value)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, model.Unauthorized(model.ErrTokenExpired)
		}
		return nil, model.Unauthorized(model.ErrTokenInvalid)
	}

	result := &model.AuthClaims{
		UserID:  claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}

// EnsureAdmin creates the bootstrap administrator when no identity owns email yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email string, name string, secret string) error {
	email = strings.TrimSpace(email)
	if email == "" || secret == "" {
		return nil
	}
	if strings.TrimSpace(name) == "" {
		name = "admin"
	}

	taken, err := s.exists(ctx, func(ctx context.Context) (model.Identity, error) {
		return s.users.FindByEmail(ctx, email)
	})
	if err != nil || taken {
		return err
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	err = s.users.Create(storeCtx, model.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         model.RoleAdmin,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", unavailable(err))
	}
	slog.Info("admin identity created", "email", email)
	return nil
}

// StartSweeper removes expired sessions every interval until ctx is done.
// A non-positive interval disables it.
func (s *AuthService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired(ctx)
			}
		}
	}()
}

func (s *AuthService) SweepExpired(ctx context.Context) int64 {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	removed, err := s.sessions.DeleteExpired(storeCtx)
	if err != nil {
		slog.Error("expired session sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		s.metrics.SessionsSwept.Add(float64(removed))
		slog.Info("expired sessions removed", "count", removed)
	}
	return removed
}

func (s *AuthService) createSession(ctx context.Context, identity model.Identity, flow string) (model.AuthResult, error) {
	sessionID, err := newSessionID()
	if err != nil {
		return model.AuthResult{}, err
	}

	refresh, err := s.codec.IssueRefreshToken(identity.ID, sessionID)
	if err != nil {
		return model.AuthResult{}, err
	}
	access, err := s.codec.IssueAccessToken(identity)
	if err != nil {
		return model.AuthResult{}, err
	}

	storeCtx, cancel := s.storeContext(ctx)
	err = s.sessions.Create(storeCtx, model.Session{
		SessionID:  sessionID,
		TokenValue: refresh.Value,
		IdentityID: identity.ID,
		ExpiresAt:  refresh.ExpiresAt,
		CreatedAt:  s.now().UTC(),
	})
	cancel()
	if err != nil {
		return model.AuthResult{}, unavailable(err)
	}

	s.metrics.SessionsIssued.WithLabelValues(flow).Inc()
	s.publish(ctx, event.TypeSessionCreated, identity.ID, sessionID, flow)

	return model.AuthResult{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        sessionID,
		User:             identity.Public(),
	}, nil
}

// rotatedWithinGrace reports whether value was rotated away from its session
// moments ago, which is what a concurrent refresh that lost the swap sees.
func (s *AuthService) rotatedWithinGrace(ctx context.Context, value string, claims *token.RefreshClaims) bool {
	if s.opts.RotationGrace <= 0 {
		return false
	}

	storeCtx, cancel := s.storeContext(ctx)
	record, err := s.sessions.FindRotatedFrom(storeCtx, value)
	cancel()
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			slog.Error("rotated session lookup failed", "session_id", claims.SessionID, "error", err)
		}
		return false
	}

	if record.SessionID != claims.SessionID || record.IdentityID != claims.Subject {
		return false
	}
	return s.now().Sub(record.RotatedAt) <= s.opts.RotationGrace
}

// handleReuse runs when a correctly signed refresh token has no live record:
// it was rotated away or revoked, so someone is replaying it.
func (s *AuthService) handleReuse(ctx context.Context, claims *token.RefreshClaims) {
	s.metrics.ReuseDetected.Inc()
	s.publish(ctx, event.TypeSessionReuseDetected, claims.Subject, claims.SessionID, "session_not_found")
	slog.Warn("refresh token reuse detected", "identity_id", claims.Subject, "session_id", claims.SessionID)

	if !s.opts.RevokeOnReuse {
		return
	}
	if _, err := s.revokeAll(ctx, claims.Subject, "reuse"); err != nil {
		slog.Error("revoke sessions after reuse failed", "identity_id", claims.Subject, "error", err)
	}
}

func (s *AuthService) revokeAll(ctx context.Context, identityID string, cause string) (int64, error) {
	storeCtx, cancel := s.storeContext(ctx)
	removed, err := s.sessions.DeleteAllForIdentity(storeCtx, identityID)
	cancel()
	if err != nil {
		return 0, unavailable(err)
	}

	s.metrics.SessionsRevoked.WithLabelValues(cause).Add(float64(removed))
	s.publish(ctx, event.TypeSessionsRevokedAll, identityID, "", cause)
	return removed, nil
}

// rejectRefresh counts every rejection. Only rejections of correctly signed
// tokens are published.
func (s *AuthService) rejectRefresh(ctx context.Context, claims *token.RefreshClaims, reason error) (model.AuthResult, error) {
	err := model.Unauthorized(reason)
	label := model.UnauthorizedReason(err)
	s.metrics.RefreshOutcomes.WithLabelValues(label).Inc()
	if claims != nil {
		s.publish(ctx, event.TypeRefreshRejected, claims.Subject, claims.SessionID, label)
	}
	return model.AuthResult{}, err
}

// exists reports whether lookup found an identity. Only ErrUserNotFound
// counts as absent.
func (s *AuthService) exists(ctx context.Context, lookup func(context.Context) (model.Identity, error)) (bool, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	_, err := lookup(storeCtx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrUserNotFound):
		return false, nil
	default:
		return false, unavailable(err)
	}
}

func (s *AuthService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *AuthService) publish(ctx context.Context, typ event.Type, identityID string, sessionID string, reason string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type:       typ,
		IdentityID: identityID,
		SessionID:  sessionID,
		Reason:     reason,
		ClientIP:   clientIPFromContext(ctx),
	})
}

func newSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
