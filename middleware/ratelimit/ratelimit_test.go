package ratelimit_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carely/go-auth/middleware/ratelimit"
)

type countingLimiter struct {
	capacity int
	taken    map[string]int
	err      error
}

func (l *countingLimiter) Take(_ context.Context, key string) (ratelimit.Decision, error) {
	if l.err != nil {
		return ratelimit.Decision{Allowed: true}, l.err
	}
	l.taken[key]++
	left := l.capacity - l.taken[key]
	if left < 0 {
		return ratelimit.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}, nil
	}
	return ratelimit.Decision{Allowed: true, Remaining: int64(left)}, nil
}

func newApp(h fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Post("/auth/login", h, func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestNew_BlocksAfterCapacity(t *testing.T) {
	limiter := &countingLimiter{capacity: 2, taken: map[string]int{}}
	app := newApp(ratelimit.New(limiter, ratelimit.Config{Enabled: true, Capacity: 2}))

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestNew_CustomLimitReached(t *testing.T) {
	limiter := &countingLimiter{capacity: 0, taken: map[string]int{}}
	app := newApp(ratelimit.New(limiter, ratelimit.Config{
		Enabled: true,
		LimitReached: func(c *fiber.Ctx, _ ratelimit.Decision) error {
			return c.Status(fiber.StatusTeapot).SendString("slow down")
		},
	}))

	resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)
}

func TestNew_FailsOpen(t *testing.T) {
	var observed error
	limiter := &countingLimiter{err: errors.New("redis down"), taken: map[string]int{}}
	app := newApp(ratelimit.New(limiter, ratelimit.Config{
		Enabled:       true,
		ErrorListener: func(_ *fiber.Ctx, err error) { observed = err },
	}))

	resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualError(t, observed, "redis down")
}

func TestNew_Disabled(t *testing.T) {
	limiter := &countingLimiter{capacity: 0, taken: map[string]int{}}
	app := newApp(ratelimit.New(limiter, ratelimit.Config{Enabled: false}))

	resp, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, limiter.taken)
}

func TestBuildKey(t *testing.T) {
	app := fiber.New()
	var keys []string
	app.Post("/auth/login", func(c *fiber.Ctx) error {
		keys = append(keys,
			ratelimit.BuildKey(ratelimit.Config{Prefix: "login", KeyStrategy: "ip"}, c),
			ratelimit.BuildKey(ratelimit.Config{KeyStrategy: "route"}, c),
		)
		return nil
	})

	_, err := app.Test(httptest.NewRequest("POST", "/auth/login", nil))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.True(t, strings.HasPrefix(keys[0], "login:ip:"))
	assert.NotContains(t, keys[0], "route")
	assert.Equal(t, "rl:route:POST /auth/login", keys[1])
}

// scriptStub answers EVALSHA with a fixed reply
type scriptStub struct {
	reply any
	err   error
}

func (s scriptStub) cmd(ctx context.Context) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
	} else {
		cmd.SetVal(s.reply)
	}
	return cmd
}

func (s scriptStub) Eval(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	return s.cmd(ctx)
}

func (s scriptStub) EvalSha(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	return s.cmd(ctx)
}

func (s scriptStub) EvalRO(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	return s.cmd(ctx)
}

func (s scriptStub) EvalShaRO(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	return s.cmd(ctx)
}

func (s scriptStub) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceCmd(ctx)
}

func (s scriptStub) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	return redis.NewStringCmd(ctx)
}

func TestRedisLimiter_Take(t *testing.T) {
	cfg := ratelimit.Config{Enabled: true, Capacity: 5}

	t.Run("decodes the bucket reply", func(t *testing.T) {
		l := ratelimit.NewRedisLimiter(scriptStub{reply: []any{int64(0), int64(0), int64(1200)}}, cfg)
		d, err := l.Take(context.Background(), "login:1.2.3.4")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 1200*time.Millisecond, d.RetryAfter)
	})

	t.Run("short reply fails open", func(t *testing.T) {
		l := ratelimit.NewRedisLimiter(scriptStub{reply: []any{int64(1)}}, cfg)
		d, err := l.Take(context.Background(), "login:1.2.3.4")
		require.Error(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryExternal))
	})

	t.Run("redis failure fails open", func(t *testing.T) {
		l := ratelimit.NewRedisLimiter(scriptStub{err: errors.New("connection refused")}, cfg)
		d, err := l.Take(context.Background(), "login:1.2.3.4")
		require.Error(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryExternal))
	})
}
