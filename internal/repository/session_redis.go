package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chatbot-auth/internal/model"
)

const defaultKeyPrefix = "auth"

// KEYS: token key, session key, identity set. ARGV: payload, ttl ms, digest, session id.
var createSessionScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 or redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SET", KEYS[2], ARGV[3], "PX", ARGV[2])
redis.call("SADD", KEYS[3], ARGV[4])
return 1
`)

// KEYS: session key, old token key, new token key, previous key. ARGV: old digest, new digest, payload, ttl ms, session id.
var replaceSessionScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current or current ~= ARGV[1] then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 0 then
  return 0
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return -1
end
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[3], "PX", ARGV[4])
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[4])
redis.call("SET", KEYS[4], ARGV[5], "PX", ARGV[4])
return 1
`)

// KEYS: token key, session key, identity set. ARGV: digest, session id.
var deleteSessionScript = redis.NewScript(`
local existed = redis.call("DEL", KEYS[1])
if redis.call("GET", KEYS[2]) == ARGV[1] then
  redis.call("DEL", KEYS[2])
  redis.call("SREM", KEYS[3], ARGV[2])
end
return existed
`)

// KEYS: identity set. ARGV: key prefix.
var deleteIdentitySessionsScript = redis.NewScript(`
local sids = redis.call("SMEMBERS", KEYS[1])
local removed = 0
for _, sid in ipairs(sids) do
  local sid_key = ARGV[1] .. ":sid:" .. sid
  local digest = redis.call("GET", sid_key)
  if digest then
    redis.call("DEL", ARGV[1] .. ":tok:" .. digest)
    redis.call("DEL", sid_key)
    removed = removed + 1
  end
end
redis.call("DEL", KEYS[1])
return removed
`)

// RedisSessionStore keeps refresh sessions in Redis. Every mutation is a Lua
// script so create, rotate and delete are atomic per session.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSessionStore) tokenKey(digest string) string    { return s.prefix + ":tok:" + digest }
func (s *RedisSessionStore) sessionKey(id string) string      { return s.prefix + ":sid:" + id }
func (s *RedisSessionStore) identityKey(id string) string     { return s.prefix + ":user:" + id }
func (s *RedisSessionStore) previousKey(digest string) string { return s.prefix + ":prev:" + digest }

func (s *RedisSessionStore) Create(ctx context.Context, session model.Session) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("create session: session already expired")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("create session: encode: %w", err)
	}

	digest := tokenDigest(session.TokenValue)
	created, err := createSessionScript.Run(ctx, s.client,
		[]string{s.tokenKey(digest), s.sessionKey(session.SessionID), s.identityKey(session.IdentityID)},
		payload, ttl.Milliseconds(), digest, session.SessionID,
	).Int64()
	if err != nil {
		return translateError("create session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if created == 0 {
		return fmt.Errorf("create session: %w", model.ErrSessionConflict)
	}
	return nil
}

func (s *RedisSessionStore) FindByTokenValue(ctx context.Context, value string) (model.Session, error) {
	session, err := s.load(ctx, tokenDigest(value))
	if err != nil {
		return model.Session{}, translateError("find session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if session.Expired(s.now()) {
		return model.Session{}, fmt.Errorf("find session: %w", model.ErrSessionNotFound)
	}
	session.TokenValue = value
	return session, nil
}

// FindRotatedFrom returns the live session whose last rotation replaced value.
// The pointer key may outlive later rotations, so the current payload decides.
func (s *RedisSessionStore) FindRotatedFrom(ctx context.Context, value string) (model.Session, error) {
	digest := tokenDigest(value)
	sessionID, err := s.client.Get(ctx, s.previousKey(digest)).Result()
	if err != nil {
		return model.Session{}, translateError("find rotated session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	currentDigest, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		return model.Session{}, translateError("find rotated session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	session, err := s.load(ctx, currentDigest)
	if err != nil {
		return model.Session{}, translateError("find rotated session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if session.PreviousDigest != digest || session.Expired(s.now()) {
		return model.Session{}, fmt.Errorf("find rotated session: %w", model.ErrSessionNotFound)
	}
	return session, nil
}

// Replace rotates the session's token value. The record read beforehand only
// supplies the payload; the script re-checks that oldValue is still current.
func (s *RedisSessionStore) Replace(ctx context.Context, sessionID string, oldValue string, newValue string, expiresAt time.Time) error {
	oldDigest := tokenDigest(oldValue)
	current, err := s.load(ctx, oldDigest)
	if err != nil {
		return translateError("replace session token", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	if current.SessionID != sessionID || current.Expired(s.now()) {
		return fmt.Errorf("replace session token: %w", model.ErrSessionNotFound)
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("replace session token: new expiry already passed")
	}

	current.ExpiresAt = expiresAt
	current.RotatedAt = s.now().UTC()
	current.PreviousDigest = oldDigest
	payload, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("replace session token: encode: %w", err)
	}

	newDigest := tokenDigest(newValue)
	result, err := replaceSessionScript.Run(ctx, s.client,
		[]string{s.sessionKey(sessionID), s.tokenKey(oldDigest), s.tokenKey(newDigest), s.previousKey(oldDigest)},
		oldDigest, newDigest, payload, ttl.Milliseconds(), sessionID,
	).Int64()
	if err != nil {
		return translateError("replace session token", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}

	switch result {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("replace session token: %w", model.ErrSessionConflict)
	default:
		return fmt.Errorf("replace session token: %w", model.ErrSessionNotFound)
	}
}

// DeleteByTokenValue reports whether a live record was removed.
func (s *RedisSessionStore) DeleteByTokenValue(ctx context.Context, value string) (bool, error) {
	digest := tokenDigest(value)
	session, err := s.load(ctx, digest)
	if err != nil {
		if classify(err) == kindNotFound {
			return false, nil
		}
		return false, translateError("delete session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}

	existed, err := deleteSessionScript.Run(ctx, s.client,
		[]string{s.tokenKey(digest), s.sessionKey(session.SessionID), s.identityKey(session.IdentityID)},
		digest, session.SessionID,
	).Int64()
	if err != nil {
		return false, translateError("delete session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return existed > 0, nil
}

func (s *RedisSessionStore) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	removed, err := deleteIdentitySessionsScript.Run(ctx, s.client,
		[]string{s.identityKey(identityID)}, s.prefix,
	).Int64()
	if err != nil {
		return 0, translateError("delete identity sessions", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return removed, nil
}

// DeleteExpired prunes identity index entries whose session keys Redis has
// already expired. The session records themselves carry a TTL.
func (s *RedisSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	var pruned int64
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":user:*", 100).Result()
		if err != nil {
			return pruned, translateError("scan identity sessions", err, model.ErrSessionNotFound, model.ErrSessionConflict)
		}

		for _, key := range keys {
			members, err := s.client.SMembers(ctx, key).Result()
			if err != nil {
				return pruned, translateError("list identity sessions", err, model.ErrSessionNotFound, model.ErrSessionConflict)
			}
			for _, sessionID := range members {
				exists, err := s.client.Exists(ctx, s.sessionKey(sessionID)).Result()
				if err != nil {
					return pruned, translateError("check session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
				}
				if exists == 0 {
					if err := s.client.SRem(ctx, key, sessionID).Err(); err != nil {
						return pruned, translateError("prune session", err, model.ErrSessionNotFound, model.ErrSessionConflict)
					}
					pruned++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return pruned, nil
		}
	}
}

func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return translateError("ping redis", err, model.ErrSessionNotFound, model.ErrSessionConflict)
	}
	return nil
}

func (s *RedisSessionStore) load(ctx context.Context, digest string) (model.Session, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(digest)).Bytes()
	if err != nil {
		return model.Session{}, err
	}

	var session model.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return model.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}
