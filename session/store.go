package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned by Get when the session does not exist or
	// has expired.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable indicates the session backend is unreachable.
	ErrStoreUnavailable = errors.New("session backend unavailable")
)

// Config tunes the store. MaxPerIdentity is the hard session cap;
// Lifetime is the absolute expiry applied to every session.
type Config struct {
	Prefix         string
	MaxPerIdentity int
	Lifetime       time.Duration
}

// createScript drops stale index entries, evicts least-recently-active
// sessions until a slot is free, then installs the new session. Returns
// the evicted session IDs.
const createScript = `
local index_key = KEYS[1]
local session_key = KEYS[2]
local session_id = ARGV[1]
local payload = ARGV[2]
local now_ms = tonumber(ARGV[3])
local max_sessions = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])
local key_prefix = ARGV[6]

local members = redis.call("ZRANGE", index_key, 0, -1)
for _, sid in ipairs(members) do
  if redis.call("EXISTS", key_prefix .. sid) == 0 then
    redis.call("ZREM", index_key, sid)
  end
end

local evicted = {}
local count = redis.call("ZCARD", index_key)
while count >= max_sessions do
  local oldest = redis.call("ZPOPMIN", index_key)
  if #oldest == 0 then
    break
  end
  redis.call("DEL", key_prefix .. oldest[1])
  table.insert(evicted, oldest[1])
  count = count - 1
end

redis.call("SET", session_key, payload, "PX", ttl_ms)
redis.call("ZADD", index_key, now_ms, session_id)
redis.call("PEXPIRE", index_key, ttl_ms)
return evicted
`

// touchScript bumps last activity only while the session still exists.
const touchScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("ZADD", KEYS[2], tonumber(ARGV[2]), ARGV[1])
return 1
`

var (
	createLua = redis.NewScript(createScript)
	touchLua  = redis.NewScript(touchScript)
)

// Store is a Redis-backed bounded session store.
type Store struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// NewStore creates a [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	return &Store{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) keyPrefix(identityID string) string {
	return s.config.Prefix + ":" + identityID + ":"
}

func (s *Store) sessionKey(identityID, sessionID string) string {
	return s.keyPrefix(identityID) + sessionID
}

func (s *Store) indexKey(identityID string) string {
	return s.config.Prefix + "x:" + identityID
}

// Create persists sess and returns the IDs of any sessions evicted to
// make room.
func (s *Store) Create(ctx context.Context, sess *Session) ([]string, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	raw, err := createLua.Run(ctx, s.redis,
		[]string{s.indexKey(sess.IdentityID), s.sessionKey(sess.IdentityID, sess.SessionID)},
		sess.SessionID,
		payload,
		s.now().UnixMilli(),
		s.config.MaxPerIdentity,
		s.config.Lifetime.Milliseconds(),
		s.keyPrefix(sess.IdentityID),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	reply, _ := raw.([]interface{})
	evicted := make([]string, 0, len(reply))
	for _, v := range reply {
		if sid, ok := v.(string); ok {
			evicted = append(evicted, sid)
		}
	}
	return evicted, nil
}

// Get returns one session. The LastActivity field is populated from the
// activity index.
func (s *Store) Get(ctx context.Context, identityID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.sessionKey(identityID, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: corrupt session blob", ErrStoreUnavailable)
	}

	score, err := s.redis.ZScore(ctx, s.indexKey(identityID), sessionID).Result()
	if err == nil {
		sess.LastActivity = time.UnixMilli(int64(score))
	}

	return &sess, nil
}

// Exists reports whether the session is still live.
func (s *Store) Exists(ctx context.Context, identityID, sessionID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.sessionKey(identityID, sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Touch updates the session's last activity. Touching a session that no
// longer exists (revoked or evicted) is a silent no-op.
func (s *Store) Touch(ctx context.Context, identityID, sessionID string) error {
	err := touchLua.Run(ctx, s.redis,
		[]string{s.sessionKey(identityID, sessionID), s.indexKey(identityID)},
		sessionID,
		s.now().UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Revoke removes one session. Absence is not an error.
func (s *Store) Revoke(ctx context.Context, identityID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(identityID, sessionID))
		pipe.ZRem(ctx, s.indexKey(identityID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RevokeAll removes every session for the identity and returns how many
// were dropped.
func (s *Store) RevokeAll(ctx context.Context, identityID string) (int, error) {
	indexKey := s.indexKey(identityID)
	sids, err := s.redis.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if len(sids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, s.sessionKey(identityID, sid))
	}
	keys = append(keys, indexKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(sids), nil
}

// List returns the identity's live sessions ordered by last activity,
// most recent first. Index entries whose blobs have expired are pruned
// as a side effect.
func (s *Store) List(ctx context.Context, identityID string) ([]Session, error) {
	indexKey := s.indexKey(identityID)
	entries, err := s.redis.ZRevRangeWithScores(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, entry := range entries {
		sid, ok := entry.Member.(string)
		if !ok {
			continue
		}

		data, err := s.redis.Get(ctx, s.sessionKey(identityID, sid)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				_ = s.redis.ZRem(ctx, indexKey, sid).Err()
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sess.LastActivity = time.UnixMilli(int64(entry.Score))
		sessions = append(sessions, sess)
	}

	return sessions, nil
}
