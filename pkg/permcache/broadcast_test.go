package permcache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/opsboard/pkg/rbac"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []Invalidation
}

func (r *recordingNotifier) Notify(inv Invalidation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, inv)
}

func TestCache_NotifiesLocalChanges(t *testing.T) {
	c, _, _ := newTestCache(t, seeded())
	n := &recordingNotifier{}
	c.SetNotifier(n)

	c.Invalidate()
	c.InvalidateIdentity(" Sales@Example.com")
	c.PatchResourcePermission(rbac.ResourcePermission{RoleCode: "SALES", ResourceCode: "orders"})
	c.PatchPagePermissions("", nil)

	assert.Equal(t, []Invalidation{
		{},
		{Email: "sales@example.com"},
		{Role: "SALES"},
	}, n.seen)

	c.SetNotifier(nil)
	c.Invalidate()
	assert.Len(t, n.seen, 3)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, func() *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	connect := func() *redis.Client {
		client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		return client
	}
	return mr, connect
}

func TestNewRedisClient_Errors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(context.Background(), "redis://"+addr)
	assert.Error(t, err)
}

func isFresh(c *Cache, email string) bool {
	_, ok := c.fresh(normalizeEmail(email))
	return ok
}

func TestBroadcaster_PropagatesInvalidations(t *testing.T) {
	mr, connect := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, _, _ := newTestCache(t, seeded())
	remote, _, _ := newTestCache(t, seeded())
	NewBroadcaster(connect(), "", local, quietLogger())
	listener := NewBroadcaster(connect(), "", remote, quietLogger())

	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultInvalidationChannel)[DefaultInvalidationChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	remote.Load(ctx, "sales@example.com")
	require.True(t, isFresh(remote, "sales@example.com"))

	local.InvalidateIdentity("sales@example.com")

	assert.Eventually(t, func() bool {
		return !isFresh(remote, "sales@example.com")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBroadcaster_Apply(t *testing.T) {
	_, connect := setupRedis(t)
	ctx := context.Background()

	reader := seeded()
	reader.roles["ops@example.com"] = "OPS"
	c, _, _ := newTestCache(t, reader)
	b := NewBroadcaster(connect(), "test", c, quietLogger())

	load := func() {
		c.Load(ctx, "sales@example.com")
		c.Load(ctx, "ops@example.com")
	}
	encode := func(inv Invalidation) string {
		data, err := json.Marshal(inv)
		require.NoError(t, err)
		return string(data)
	}

	load()

	b.apply(encode(Invalidation{Origin: b.Origin()}))
	b.apply("{not json")
	assert.True(t, isFresh(c, "sales@example.com"), "own and malformed messages are ignored")

	b.apply(encode(Invalidation{Origin: "peer", Role: "OPS"}))
	assert.True(t, isFresh(c, "sales@example.com"))
	assert.False(t, isFresh(c, "ops@example.com"))

	load()
	b.apply(encode(Invalidation{Origin: "peer", Email: "Sales@Example.com"}))
	assert.False(t, isFresh(c, "sales@example.com"))
	assert.True(t, isFresh(c, "ops@example.com"))

	load()
	b.apply(encode(Invalidation{Origin: "peer"}))
	assert.False(t, isFresh(c, "sales@example.com"))
	assert.False(t, isFresh(c, "ops@example.com"))
}

func TestBroadcaster_PublishesWithOrigin(t *testing.T) {
	mr, connect := setupRedis(t)
	c, _, _ := newTestCache(t, seeded())
	b := NewBroadcaster(connect(), "test", c, quietLogger())

	sub := connect().Subscribe(context.Background(), "test")
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, mr.PubSubNumSub("test")["test"])

	c.PatchPagePermissions("SALES", nil)

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var inv Invalidation
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &inv))
	assert.Equal(t, Invalidation{Origin: b.Origin(), Role: "SALES"}, inv)
}
