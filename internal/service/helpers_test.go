package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/event"
	"chatbot-auth/internal/metrics"
	"chatbot-auth/internal/model"
	"chatbot-auth/internal/password"
	"chatbot-auth/internal/repository"
	"chatbot-auth/internal/token"
)

type memoryUsers struct {
	mu    sync.RWMutex
	byID  map[string]model.Identity
	fails error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]model.Identity{}}
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (model.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fails != nil {
		return model.Identity{}, m.fails
	}
	identity, ok := m.byID[id]
	if !ok {
		return model.Identity{}, model.ErrUserNotFound
	}
	return identity, nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (model.Identity, error) {
	return m.find(func(i model.Identity) bool { return strings.EqualFold(i.Email, email) })
}

func (m *memoryUsers) FindByNameCaseInsensitive(_ context.Context, name string) (model.Identity, error) {
	return m.find(func(i model.Identity) bool { return strings.EqualFold(i.Name, name) })
}

func (m *memoryUsers) Create(_ context.Context, identity model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[identity.ID] = identity
	return nil
}

func (m *memoryUsers) find(match func(model.Identity) bool) (model.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fails != nil {
		return model.Identity{}, m.fails
	}
	for _, identity := range m.byID {
		if match(identity) {
			return identity, nil
		}
	}
	return model.Identity{}, model.ErrUserNotFound
}

type testEnv struct {
	service  *AuthService
	users    *memoryUsers
	sessions *repository.RedisSessionStore
	codec    *token.Codec
	bus      *event.InMemoryBus
	metrics  *metrics.Auth
	redis    *miniredis.Miniredis
}

func newTestCodec(t *testing.T) *token.Codec {
	t.Helper()

	codec, err := token.NewCodec(token.Keys{
		AccessSecret:  []byte("access-secret-for-tests-0123456789abcdef"),
		RefreshSecret: []byte("refresh-secret-for-tests-0123456789abcdef"),
		Issuer:        "chatbot-auth-test",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	})
	require.NoError(t, err)
	return codec
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()

	hasher, err := password.NewHasher(4)
	require.NoError(t, err)
	return hasher
}

func newTestEnv(t *testing.T, opts AuthOptions) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		users:    newMemoryUsers(),
		sessions: repository.NewRedisSessionStore(client, "svc"),
		codec:    newTestCodec(t),
		bus:      event.NewBus(),
		metrics:  metrics.New(),
		redis:    mr,
	}

	svc, err := NewAuthService(env.users, env.sessions, env.codec, newTestHasher(t), env.bus, env.metrics, opts)
	require.NoError(t, err)
	env.service = svc
	return env
}

func (e *testEnv) register(t *testing.T, email string, name string) model.AuthResult {
	t.Helper()

	result, err := e.service.Register(context.Background(), email, name, "correct-horse-battery")
	require.NoError(t, err)
	return result
}
