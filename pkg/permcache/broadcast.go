package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/opsboard/pkg/observability"
)

// DefaultInvalidationChannel is the Redis channel instances share
const DefaultInvalidationChannel = "opsboard:permcache:invalidate"

// Invalidation describes what another instance must mark stale. Email scopes
// it to one identity, Role to the identities holding that role; neither means
// everything.
type Invalidation struct {
	Origin string `json:"origin"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Notifier is told about every local invalidation and patch of a Cache
type Notifier interface {
	Notify(inv Invalidation)
}

// NewRedisClient connects to the Redis server at url
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Broadcaster keeps the caches of several instances coherent by publishing
// local invalidations on a Redis channel and applying those published by
// other instances.
type Broadcaster struct {
	client  *redis.Client
	channel string
	origin  string
	cache   *Cache
	logger  logrus.FieldLogger
}

// NewBroadcaster installs a broadcaster as the notifier of cache
func NewBroadcaster(client *redis.Client, channel string, cache *Cache, logger logrus.FieldLogger) *Broadcaster {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}

	b := &Broadcaster{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		cache:   cache,
		logger:  observability.OrStandard(logger).WithField("channel", channel),
	}
	cache.SetNotifier(b)
	return b
}

// Origin identifies this instance in published messages
func (b *Broadcaster) Origin() string {
	return b.origin
}

// Notify publishes inv. Failures are logged; the other instances still
// converge when their snapshots expire.
func (b *Broadcaster) Notify(inv Invalidation) {
	inv.Origin = b.origin
	payload, err := json.Marshal(inv)
	if err != nil {
		b.logger.WithError(err).Error("Failed to encode cache invalidation")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.WithError(err).Warn("Failed to publish cache invalidation")
	}
}

// Run applies invalidations published by other instances until ctx is done
func (b *Broadcaster) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("Listening for cache invalidations")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.apply(msg.Payload)
		}
	}
}

func (b *Broadcaster) apply(payload string) {
	var inv Invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		b.logger.WithError(err).Warn("Ignoring malformed cache invalidation")
		return
	}
	if inv.Origin == b.origin {
		return
	}

	switch {
	case inv.Email != "":
		b.cache.invalidateKey(normalizeEmail(inv.Email))
	case inv.Role != "":
		b.cache.invalidateRole(inv.Role)
	default:
		b.cache.invalidateAll()
	}

	b.logger.WithFields(logrus.Fields{
		"origin": inv.Origin,
		"email":  inv.Email,
		"role":   inv.Role,
	}).Debug("Applied remote cache invalidation")
}
