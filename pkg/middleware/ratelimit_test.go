package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/contextkeys"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

func TestRateLimiter_BucketAndRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute, BurstSize: 2})
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 62; i++ {
		d, err := rl.Allow(ctx, "user:a")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
	}

	d, _ := rl.Allow(ctx, "user:a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60, d.Limit)

	other, _ := rl.Allow(ctx, "user:b")
	assert.True(t, other.Allowed, "keys are independent")

	// one request per second refills
	now = now.Add(time.Second)
	d, _ = rl.Allow(ctx, "user:a")
	assert.True(t, d.Allowed)
	d, _ = rl.Allow(ctx, "user:a")
	assert.False(t, d.Allowed)
	assert.True(t, d.Reset.After(now))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(PerMinute(10, 0))
	rl.now = func() time.Time { return now }

	_, _ = rl.Allow(context.Background(), "user:a")
	rl.Cleanup()
	assert.Len(t, rl.buckets, 1)

	now = now.Add(3 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.buckets)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewDistributedRateLimiter(client, PerMinute(2, 1), "")
	second := NewDistributedRateLimiter(client, PerMinute(2, 1), "")

	d, err := first.Allow(ctx, "user:a")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)
	assert.Equal(t, time.Minute, mr.TTL("opsboard:ratelimit:user:a"))

	d, _ = second.Allow(ctx, "user:a")
	assert.True(t, d.Allowed)
	d, _ = first.Allow(ctx, "user:a")
	assert.True(t, d.Allowed)
	d, _ = second.Allow(ctx, "user:a")
	assert.False(t, d.Allowed, "instances share the counter")

	mr.FastForward(time.Minute + time.Second)
	d, _ = first.Allow(ctx, "user:a")
	assert.True(t, d.Allowed, "new window")

	require.NoError(t, first.Reset(ctx, "user:a"))
	assert.False(t, mr.Exists("opsboard:ratelimit:user:a"))

	mr.Close()
	_, err = first.Allow(ctx, "user:a")
	assert.Error(t, err)
}

type stubLimiter struct {
	decision Decision
	err      error
	keys     []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (Decision, error) {
	s.keys = append(s.keys, key)
	return s.decision, s.err
}

func serve(m *RateLimitMiddleware, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(w, r)
	return w
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := &stubLimiter{decision: Decision{Allowed: true, Limit: 10, Remaining: 9, Reset: time.Now().Add(time.Minute)}}
	m := NewRateLimitMiddleware(limiter, false, nil)

	r := httptest.NewRequest(http.MethodGet, "/rbac/roles", nil)
	r = r.WithContext(contextkeys.WithIdentity(r.Context(), rbac.Identity{Email: "root@example.com"}))
	w := serve(m, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	anon := httptest.NewRequest(http.MethodGet, "/rbac/roles", nil)
	anon.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	serve(m, anon)
	assert.Equal(t, []string{"user:root@example.com", "ip:203.0.113.7"}, limiter.keys)

	limiter.decision = Decision{Allowed: false, Limit: 10, Reset: time.Now().Add(30 * time.Second)}
	w = serve(m, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddleware_LimiterErrors(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	r := httptest.NewRequest(http.MethodGet, "/rbac/roles", nil)

	assert.Equal(t, http.StatusServiceUnavailable, serve(NewRateLimitMiddleware(limiter, false, nil), r).Code)
	assert.Equal(t, http.StatusNoContent, serve(NewRateLimitMiddleware(limiter, true, nil), r).Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:4321"
	assert.Equal(t, "192.0.2.1", clientIP(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(r))
}
