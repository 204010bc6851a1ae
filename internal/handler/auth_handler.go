package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/model"
	"chatbot-auth/internal/service"
)

type AuthHandler struct {
	Responder
	service *service.AuthService
	audit   *service.AuditService
	cookies CookieSettings
}

func NewAuthHandler(service *service.AuthService, audit *service.AuditService, cookies CookieSettings, responder Responder) *AuthHandler {
	return &AuthHandler{Responder: responder, service: service, audit: audit, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeAndValidate(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Register(requestContext(r), payload.Email, payload.Name, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.deliver(w, r, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeAndValidate(w, r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Login(requestContext(r), payload.Email, payload.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.deliver(w, r, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	value, err := h.refreshToken(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.service.Refresh(requestContext(r), value)
	if err != nil {
		// A lost concurrent rotation keeps the cookies the winning request set.
		if errors.Is(err, model.ErrUnauthorized) && !errors.Is(err, model.ErrRotationLost) && !isAPIClient(r) {
			h.cookies.clearSession(w)
		}
		h.writeError(w, r, err)
		return
	}

	h.deliver(w, r, http.StatusOK, result)
}

// Logout always succeeds from the client's point of view; the cookies are
// cleared even when the store could not be reached.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	value, err := h.refreshToken(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.service.Logout(requestContext(r), value); err != nil {
		slog.Warn("logout could not delete session",
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err,
		)
	}

	if !isAPIClient(r) {
		h.cookies.clearSession(w)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.Unauthorized(model.ErrMissingToken))
		return
	}

	removed, err := h.service.LogoutAll(requestContext(r), claims.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !isAPIClient(r) {
		h.cookies.clearSession(w)
	}
	writeSuccess(w, http.StatusOK, map[string]any{"revoked": removed})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.Unauthorized(model.ErrMissingToken))
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			err = model.Unauthorized(model.ErrTokenInvalid)
		}
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, user)
}

func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeSuccess(w, http.StatusOK, model.AuthStatus{Authenticated: false})
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			writeSuccess(w, http.StatusOK, model.AuthStatus{Authenticated: false})
			return
		}
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuthStatus{Authenticated: true, User: &user})
}

// Events lists the caller's recent security events, newest first.
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.Unauthorized(model.ErrMissingToken))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, r, model.ErrInvalidInput)
			return
		}
		limit = parsed
	}

	events, err := h.audit.ListForIdentity(r.Context(), claims.UserID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"events": events})
}

// deliver hands a fresh session to the client: cookies for browsers, a token
// pair in the body for API clients.
func (h *AuthHandler) deliver(w http.ResponseWriter, r *http.Request, status int, result model.AuthResult) {
	if isAPIClient(r) {
		writeSuccess(w, status, model.TokenPair{
			AccessToken:  result.AccessToken,
			RefreshToken: result.RefreshToken,
			TokenType:    tokenTypeBearer,
			ExpiresIn:    int64(time.Until(result.AccessExpiresAt).Round(time.Second) / time.Second),
			User:         result.User,
		})
		return
	}

	h.cookies.setSession(w, result)
	writeSuccess(w, status, model.SessionView{User: result.User, ExpiresAt: result.AccessExpiresAt})
}

// refreshToken reads the refresh token from the JSON body for API clients and
// from the cookie for browsers. A missing token is returned as "".
func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if !isAPIClient(r) {
		if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
			return strings.TrimSpace(cookie.Value), nil
		}
		return "", nil
	}

	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(payload.RefreshToken), nil
}
