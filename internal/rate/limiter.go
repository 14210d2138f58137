package rate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the limiter posture. All three knobs are deployment
// configuration, never hardcoded call sites: dev environments typically
// run a wide-open threshold, production a tight one.
type Config struct {
	Enabled       bool
	Threshold     int
	Window        time.Duration
	BlockDuration time.Duration
	Prefix        string
}

// Result is the outcome of a single check-and-record call.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// checkAndRecordScript purges expired timestamps, honors an active block,
// installs a new block when the window is full, and otherwise records the
// attempt. Runs atomically per address.
const checkAndRecordScript = `
local window_key = KEYS[1]
local block_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local threshold = tonumber(ARGV[3])
local block_ms = tonumber(ARGV[4])
local member = ARGV[5]

local block_ttl = redis.call("PTTL", block_key)
if block_ttl > 0 then
  return {0, block_ttl}
end

redis.call("ZREMRANGEBYSCORE", window_key, 0, now_ms - window_ms)

local count = redis.call("ZCARD", window_key)
if count >= threshold then
  redis.call("SET", block_key, "1", "PX", block_ms)
  redis.call("DEL", window_key)
  return {0, block_ms}
end

redis.call("ZADD", window_key, now_ms, member)
redis.call("PEXPIRE", window_key, window_ms)
return {1, 0}
`

var checkAndRecordLua = redis.NewScript(checkAndRecordScript)

// Limiter tracks login attempts per network address in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
		now:    time.Now,
	}
}

// SetClock overrides the limiter's time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

func (l *Limiter) windowKey(addr string) string {
	return l.config.Prefix + ":w:" + addr
}

func (l *Limiter) blockKey(addr string) string {
	return l.config.Prefix + ":b:" + addr
}

// CheckAndRecord gates one login attempt from addr. When allowed, the
// attempt is recorded in the same atomic step; when blocked, RetryAfter
// reports how long the caller should wait.
func (l *Limiter) CheckAndRecord(ctx context.Context, addr string) (Result, error) {
	if !l.config.Enabled || addr == "" {
		return Result{Allowed: true}, nil
	}

	nowMS := l.now().UnixMilli()
	member := strconv.FormatInt(nowMS, 10) + ":" + randomSuffix()

	raw, err := checkAndRecordLua.Run(ctx, l.redis,
		[]string{l.windowKey(addr), l.blockKey(addr)},
		nowMS,
		l.config.Window.Milliseconds(),
		l.config.Threshold,
		l.config.BlockDuration.Milliseconds(),
		member,
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	allowed, _ := reply[0].(int64)
	retryMS, _ := reply[1].(int64)

	if allowed == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{RetryAfter: time.Duration(retryMS) * time.Millisecond}, nil
}

// Reset clears the attempt window and any active block for addr. Called
// after a successful login.
func (l *Limiter) Reset(ctx context.Context, addr string) error {
	if !l.config.Enabled || addr == "" {
		return nil
	}

	if err := l.redis.Del(ctx, l.windowKey(addr), l.blockKey(addr)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// randomSuffix keeps two attempts landing on the same millisecond from
// collapsing into one sorted-set member.
func randomSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
