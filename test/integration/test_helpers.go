//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/config"
	"chatbot-auth/internal/database"
	"chatbot-auth/internal/event"
	"chatbot-auth/internal/handler"
	"chatbot-auth/internal/metrics"
	"chatbot-auth/internal/middleware"
	"chatbot-auth/internal/password"
	"chatbot-auth/internal/repository"
	"chatbot-auth/internal/router"
	"chatbot-auth/internal/service"
	"chatbot-auth/internal/token"
)

// newServer starts the full HTTP stack against the Postgres database named by
// TEST_DATABASE_URL. Tests are skipped when it is unset.
func newServer(t *testing.T, opts service.AuthOptions) *httptest.Server {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, database.Migrate(databaseURL, database.DirectionUp))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.New(ctx, databaseURL, 5, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	cfg := &config.Config{
		RequestTimeout: 10 * time.Second,
		CORSOrigins:    []string{"http://localhost:3000"},
	}

	codec, err := token.NewCodec(token.Keys{
		AccessSecret:  []byte("integration-access-secret-0123456789abcdef"),
		RefreshSecret: []byte("integration-refresh-secret-0123456789abcdef"),
		Issuer:        "chatbot-auth-integration",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	hasher, err := password.NewHasher(4)
	require.NoError(t, err)

	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = 3 * time.Second
	}

	authMetrics := metrics.New()
	authService, err := service.NewAuthService(
		repository.NewUserRepository(db.SQL),
		repository.NewSessionRepository(db.SQL),
		codec, hasher, event.NewBus(), authMetrics,
		opts,
	)
	require.NoError(t, err)

	auditService := service.NewAuditService(repository.NewAuditRepository(db.SQL), nil)

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth: handler.NewAuthHandler(authService, auditService, handler.CookieSettings{
			AccessTTL:  codec.AccessTTL(),
			RefreshTTL: codec.RefreshTTL(),
		}, handler.Responder{}),
		Admin:   handler.NewAdminHandler(authService, handler.Responder{}),
		Health:  handler.NewHealthHandler(map[string]handler.Pinger{"postgres": db}),
		Metrics: authMetrics.Handler(),
	}))
	t.Cleanup(server.Close)

	return server
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

// uniqueIdentity returns an email and name no other test run uses.
func uniqueIdentity() (string, string) {
	suffix := uuid.NewString()[:8]
	return "user-" + suffix + "@example.com", "user-" + suffix
}

func postJSON(t *testing.T, client *http.Client, url string, payload any, apiMode bool) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiMode {
		req.Header.Set("X-Auth-Client", "api")
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type tokenPairBody struct {
	Success bool `json:"success"`
	Data    struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

func decodeTokenPair(t *testing.T, resp *http.Response) tokenPairBody {
	t.Helper()

	var parsed tokenPairBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.True(t, parsed.Success)
	return parsed
}

func decodeJSON(resp *http.Response, dst any) error {
	return json.NewDecoder(resp.Body).Decode(dst)
}
