package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/model"
)

func newRedisStore(t *testing.T) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSessionStore(client, "test:"), mr
}

func redisSession(sessionID string, identityID string, value string) model.Session {
	now := time.Now().UTC()
	return model.Session{
		SessionID:  sessionID,
		TokenValue: value,
		IdentityID: identityID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func TestRedisSessionStore_CreateAndFind(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	found, err := store.FindByTokenValue(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", found.SessionID)
	assert.Equal(t, "user-1", found.IdentityID)
	assert.Equal(t, "token-a", found.TokenValue)

	// raw token values never reach the keyspace
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "token-a")
	}
	assert.True(t, mr.Exists("test:tok:"+tokenDigest("token-a")))

	_, err = store.FindByTokenValue(ctx, "token-b")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRedisSessionStore_CreateConflict(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	err := store.Create(ctx, redisSession("sid-2", "user-1", "token-a"))
	assert.ErrorIs(t, err, model.ErrSessionConflict)

	err = store.Create(ctx, redisSession("sid-1", "user-1", "token-c"))
	assert.ErrorIs(t, err, model.ErrSessionConflict)
}

func TestRedisSessionStore_Replace(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	expiresAt := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.Replace(ctx, "sid-1", "token-a", "token-b", expiresAt))

	_, err := store.FindByTokenValue(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	found, err := store.FindByTokenValue(ctx, "token-b")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", found.SessionID)
	assert.False(t, found.RotatedAt.IsZero())
	assert.WithinDuration(t, expiresAt, found.ExpiresAt, time.Second)

	// the old value can never be swapped in again
	err = store.Replace(ctx, "sid-1", "token-a", "token-c", expiresAt)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	// a value owned by another session id is not a match
	err = store.Replace(ctx, "sid-other", "token-b", "token-c", expiresAt)
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRedisSessionStore_FindRotatedFrom(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	_, err := store.FindRotatedFrom(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	expiresAt := time.Now().Add(2 * time.Hour)
	require.NoError(t, store.Replace(ctx, "sid-1", "token-a", "token-b", expiresAt))

	found, err := store.FindRotatedFrom(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, "sid-1", found.SessionID)
	assert.Equal(t, tokenDigest("token-a"), found.PreviousDigest)
	assert.False(t, found.RotatedAt.IsZero())

	// only the latest rotation counts
	require.NoError(t, store.Replace(ctx, "sid-1", "token-b", "token-c", expiresAt))
	_, err = store.FindRotatedFrom(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = store.DeleteAllForIdentity(ctx, "user-1")
	require.NoError(t, err)
	_, err = store.FindRotatedFrom(ctx, "token-b")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRedisSessionStore_ReplaceSingleWinner(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	const n = 12
	var wg sync.WaitGroup
	results := make(chan error, n)
	expiresAt := time.Now().Add(time.Hour)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- store.Replace(ctx, "sid-1", "token-a", "next-"+string(rune('a'+i)), expiresAt)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, model.ErrSessionNotFound)
	}
	assert.Equal(t, 1, wins)
}

func TestRedisSessionStore_DeleteIsIdempotent(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	existed, err := store.DeleteByTokenValue(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.DeleteByTokenValue(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = store.DeleteByTokenValue(ctx, "never-existed")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = store.FindByTokenValue(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestRedisSessionStore_DeleteAllForIdentity(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))
	require.NoError(t, store.Create(ctx, redisSession("sid-2", "user-1", "token-b")))
	require.NoError(t, store.Create(ctx, redisSession("sid-3", "user-2", "token-c")))

	removed, err := store.DeleteAllForIdentity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.FindByTokenValue(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
	_, err = store.FindByTokenValue(ctx, "token-b")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	_, err = store.FindByTokenValue(ctx, "token-c")
	assert.NoError(t, err)
	assert.False(t, mr.Exists("test:user:user-1"))
}

func TestRedisSessionStore_Expiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, redisSession("sid-1", "user-1", "token-a")))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := store.FindByTokenValue(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)

	store.now = time.Now
	mr.FastForward(2 * time.Hour)

	pruned, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	assert.False(t, mr.Exists("test:user:user-1"))
}

func TestRedisSessionStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := store.FindByTokenValue(ctx, "token-a")
	assert.ErrorIs(t, err, model.ErrUnavailable)
}
