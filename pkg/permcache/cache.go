package permcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/opsboard/pkg/observability"
	"github.com/platinummonkey/opsboard/pkg/rbac"
)

const (
	// DefaultTTL is how long a loaded snapshot is served without refetching
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the number of identities held at once
	DefaultMaxEntries = 1024
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// Config holds cache configuration
type Config struct {
	TTL        time.Duration
	MaxEntries int
	Clock      Clock
	Logger     logrus.FieldLogger
	Metrics    *observability.Metrics
}

type entry struct {
	snap *Snapshot
	// freshAt is the time the snapshot became valid; zero marks it stale
	freshAt time.Time
	// seq is the invalidation sequence the publishing load started at
	seq uint64
}

// Cache holds per-identity permission snapshots with a TTL. Concurrent loads
// of the same identity share one fetch.
type Cache struct {
	reader  rbac.PermissionReader
	ttl     time.Duration
	clock   Clock
	logger  logrus.FieldLogger
	metrics *observability.Metrics

	group singleflight.Group

	mu       sync.Mutex
	entries  *lru.Cache[string, *entry]
	inflight map[string]int
	notifier Notifier

	// seq counts invalidations. allSeq, keySeq and roleSeq hold the seq of
	// the latest invalidation of everything, of an in-flight key and of a
	// role; a load started before any of them that concern it publishes stale.
	seq     uint64
	allSeq  uint64
	keySeq  map[string]uint64
	roleSeq map[string]uint64
}

// New creates a cache reading from reader
func New(reader rbac.PermissionReader, cfg Config) (*Cache, error) {
	if reader == nil {
		return nil, errors.New("permcache: reader is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Clock == nil {
		cfg.Clock = ClockFunc(time.Now)
	}

	entries, err := lru.New[string, *entry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	return &Cache{
		reader:   reader,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
		logger:   observability.OrStandard(cfg.Logger),
		metrics:  cfg.Metrics,
		entries:  entries,
		inflight: make(map[string]int),
		keySeq:   make(map[string]uint64),
		roleSeq:  make(map[string]uint64),
	}, nil
}

// Load returns the snapshot for email, fetching it when the cached one is
// missing or older than the TTL. Load never fails: a fetch error yields an
// empty snapshot and is logged.
func (c *Cache) Load(ctx context.Context, email string) *Snapshot {
	key := normalizeEmail(email)

	if snap, ok := c.fresh(key); ok {
		c.metrics.CacheLookup(true)
		return snap
	}
	c.metrics.CacheLookup(false)

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight for key may have published between the check above and Do
		if snap, ok := c.fresh(key); ok {
			return snap, nil
		}
		// One caller's cancellation must not fail the loads sharing this flight
		return c.fill(context.WithoutCancel(ctx), key), nil
	})

	return v.(*Snapshot)
}

// Snapshot returns the cached snapshot for email without any I/O. Stale
// snapshots are returned as-is.
func (c *Cache) Snapshot(email string) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(normalizeEmail(email))
	if !ok {
		return nil, false
	}
	return e.snap, true
}

// Refresh invalidates email and loads it again
func (c *Cache) Refresh(ctx context.Context, email string) *Snapshot {
	c.InvalidateIdentity(email)
	return c.Load(ctx, email)
}

// Invalidate marks every snapshot stale. Cached data is kept and still served
// by Snapshot until the next Load replaces it.
func (c *Cache) Invalidate() {
	c.invalidateAll()
	c.notify(Invalidation{})
}

// InvalidateIdentity marks the snapshot of email stale
func (c *Cache) InvalidateIdentity(email string) {
	key := normalizeEmail(email)
	c.invalidateKey(key)
	c.notify(Invalidation{Email: key})
}

// SetNotifier installs n to hear about every local invalidation and patch.
// A nil n removes the current one.
func (c *Cache) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

func (c *Cache) notify(inv Invalidation) {
	c.mu.Lock()
	n := c.notifier
	c.mu.Unlock()

	if n != nil {
		n.Notify(inv)
	}
}

func (c *Cache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.allSeq = c.seq
	for _, key := range c.entries.Keys() {
		c.markStale(key)
	}
	for key := range c.inflight {
		c.group.Forget(key)
	}
	c.metrics.CacheInvalidated()
}

func (c *Cache) invalidateKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if c.inflight[key] > 0 {
		c.keySeq[key] = c.seq
	}
	c.markStale(key)
	c.metrics.CacheInvalidated()
}

// invalidateRole marks stale every snapshot holding roleCode
func (c *Cache) invalidateRole(roleCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.roleSeq[roleCode] = c.seq
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && e.snap.RoleCode == roleCode {
			c.markStale(key)
		}
	}
	// the role of an in-flight load is not known until it returns
	for key := range c.inflight {
		c.group.Forget(key)
	}
	c.metrics.CacheInvalidated()
}

// PatchPagePermissions replaces page rows in every snapshot holding roleCode.
// Freshness is left unchanged.
func (c *Cache) PatchPagePermissions(roleCode string, perms []rbac.PagePermission) {
	c.patch(roleCode, func(s *Snapshot) {
		for _, p := range perms {
			s.pages[p.PageCode] = p
		}
	})
}

// PatchResourcePermission replaces a resource row in every snapshot holding its role
func (c *Cache) PatchResourcePermission(perm rbac.ResourcePermission) {
	c.patch(perm.RoleCode, func(s *Snapshot) {
		s.resources[perm.ResourceCode] = perm
	})
}

// Len returns the number of cached identities
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) patch(roleCode string, apply func(*Snapshot)) {
	if roleCode == "" {
		return
	}
	defer c.notify(Invalidation{Role: roleCode})

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok || e.snap.RoleCode != roleCode {
			continue
		}
		snap := e.snap.clone()
		apply(snap)
		c.entries.Add(key, &entry{snap: snap, freshAt: e.freshAt, seq: e.seq})
	}
}

// markStale must be called with mu held
func (c *Cache) markStale(key string) {
	if e, ok := c.entries.Peek(key); ok {
		c.entries.Add(key, &entry{snap: e.snap, seq: e.seq})
	}
	c.group.Forget(key)
}

func (c *Cache) fresh(key string) (*Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(key)
	if !ok || e.freshAt.IsZero() {
		return nil, false
	}
	if c.clock.Now().Sub(e.freshAt) >= c.ttl {
		return nil, false
	}
	return e.snap, true
}

// fill fetches key and publishes the result. A failed fetch publishes the
// empty snapshot marked stale so the next Load retries.
func (c *Cache) fill(ctx context.Context, key string) *Snapshot {
	c.mu.Lock()
	start := c.seq
	c.inflight[key]++
	c.mu.Unlock()

	snap, err := c.fetch(ctx, key)
	c.metrics.CacheFetch(err)
	if err != nil {
		c.logger.WithError(err).WithField("email", key).Warn("Failed to load permissions, denying by default")
		snap = EmptySnapshot(key)
	}

	now := c.clock.Now()
	snap.FetchedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()
	invalidated := c.allSeq > start || c.keySeq[key] > start || c.roleSeq[snap.RoleCode] > start
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
		delete(c.keySeq, key)
	}

	if cur, ok := c.entries.Peek(key); ok && cur.seq > start {
		// A load started after an invalidation has already published
		return cur.snap
	}

	freshAt := now
	if err != nil || invalidated {
		freshAt = time.Time{}
	}
	c.entries.Add(key, &entry{snap: snap, freshAt: freshAt, seq: start})
	c.metrics.CacheSize(c.entries.Len())

	return snap
}

func (c *Cache) fetch(ctx context.Context, email string) (*Snapshot, error) {
	role, err := c.reader.IdentityRole(ctx, email)
	if errors.Is(err, rbac.ErrNotFound) {
		c.logger.WithField("email", email).Debug("No role recorded for identity")
		return EmptySnapshot(email), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}

	var (
		resources []rbac.ResourcePermission
		pages     []rbac.PagePermission
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resources, err = c.reader.ListResourcePermissions(gctx, role)
		return err
	})
	g.Go(func() error {
		var err error
		pages, err = c.reader.ListPagePermissions(gctx, role)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load permissions for role %s: %w", role, err)
	}

	return NewSnapshot(email, role, resources, pages), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
