package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/model"
)

type stubValidator map[string]*model.AuthClaims

func (s stubValidator) VerifyAccessToken(value string) (*model.AuthClaims, error) {
	claims, ok := s[value]
	if !ok {
		return nil, model.Unauthorized(model.ErrTokenInvalid)
	}
	return claims, nil
}

func newTestAuth() *AuthMiddleware {
	return NewAuthMiddleware(stubValidator{
		"user-token":  {UserID: "user-1", Role: model.RoleUser},
		"admin-token": {UserID: "admin-1", Role: model.RoleAdmin},
	})
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		_, _ = w.Write([]byte("anonymous"))
		return
	}
	_, _ = w.Write([]byte(claims.UserID))
}

func TestAuthenticate(t *testing.T) {
	handler := newTestAuth().Authenticate(http.HandlerFunc(echoUser))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
		body   string
	}{
		{
			name:   "cookie",
			setup:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "user-token"}) },
			status: http.StatusOK,
			body:   "user-1",
		},
		{
			name:   "bearer header",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer admin-token") },
			status: http.StatusOK,
			body:   "admin-1",
		},
		{
			name: "cookie wins over header",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "user-token"})
				r.Header.Set("Authorization", "Bearer admin-token")
			},
			status: http.StatusOK,
			body:   "user-1",
		},
		{
			name:   "missing",
			setup:  func(r *http.Request) {},
			status: http.StatusUnauthorized,
		},
		{
			name:   "invalid",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			status: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			} else {
				assert.JSONEq(t, `{"success":false,"error":{"code":"UNAUTHORIZED","message":"Authentication required"}}`, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuthenticate(t *testing.T) {
	handler := newTestAuth().OptionalAuthenticate(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	auth := newTestAuth()
	guarded := auth.Authenticate(auth.RequireRole(model.RoleAdmin)(http.HandlerFunc(echoUser)))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/x/revoke-sessions", nil)
	req.Header.Set("Authorization", "Bearer user-token")
	rec := httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	guarded.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// without Authenticate in front there are no claims
	rec = httptest.NewRecorder()
	auth.RequireRole(model.RoleAdmin)(http.HandlerFunc(echoUser)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
