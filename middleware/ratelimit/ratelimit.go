package ratelimit

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single bucket take
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter takes one token from the bucket identified by key
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

type Config struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	// KeyStrategy is one of ip, route, ip_route
	KeyStrategy string
	Prefix      string

	// LimitReached renders the rejection, defaults to a fiber 429
	LimitReached func(c *fiber.Ctx, d Decision) error
	// ErrorListener observes limiter failures, the request is let through
	ErrorListener func(c *fiber.Ctx, err error)
}

func (cfg Config) normalize() Config {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.LimitReached == nil {
		cfg.LimitReached = func(c *fiber.Ctx, _ Decision) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
	}
	return cfg
}

var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// RedisLimiter keeps one token bucket per key in a redis hash
type RedisLimiter struct {
	rdb redis.Scripter
	cfg Config
	now func() time.Time
}

func NewRedisLimiter(rdb redis.Scripter, cfg Config) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, cfg: cfg.normalize(), now: time.Now}
}

func (l *RedisLimiter) Take(ctx context.Context, key string) (Decision, error) {
	args := []any{
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(l.cfg.TTL / time.Second),
	}

	vals, err := tokenBucket.Run(ctx, l.rdb, []string{key}, args...).Slice()
	if err != nil {
		return Decision{Allowed: true}, errors.Wrap(err, errors.CategoryExternal, "rate limit script failed").
			WithMetadata(map[string]any{"key": key})
	}
	if len(vals) != 3 {
		return Decision{Allowed: true}, errors.New("unexpected rate limit script result", errors.CategoryExternal).
			WithMetadata(map[string]any{"key": key, "result": vals})
	}

	return Decision{
		Allowed:    asInt64(vals[0]) == 1,
		Remaining:  asInt64(vals[1]),
		RetryAfter: time.Duration(asInt64(vals[2])) * time.Millisecond,
	}, nil
}

// New returns a fiber handler enforcing limiter. A nil limiter or a disabled
// config yields a pass-through handler.
func New(limiter Limiter, cfg Config) fiber.Handler {
	cfg = cfg.normalize()
	if !cfg.Enabled || limiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return func(c *fiber.Ctx) error {
		key := BuildKey(cfg, c)

		d, err := limiter.Take(c.UserContext(), key)
		if err != nil {
			if cfg.ErrorListener != nil {
				cfg.ErrorListener(c, err)
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 0 {
				secs = 0
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			return cfg.LimitReached(c, d)
		}
		return c.Next()
	}
}

// BuildKey derives the bucket key for a request
func BuildKey(cfg Config, c *fiber.Ctx) string {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "rl"
	}
	parts := []string{prefix}

	ip := c.IP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Method() + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "route":
		parts = append(parts, "route", route)
	default:
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
