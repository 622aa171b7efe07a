package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EcoEarn/ecoearn-interface-sub000/internal/metrics"
	"github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv"
	kvredis "github.com/EcoEarn/ecoearn-interface-sub000/pkg/kv/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache key prefixes
const (
	KeyPoolAggregate = "eco:pool:agg"
	KeyUserStake     = "eco:user:stake"
	KeyPollStatus    = "eco:poll:status"
)

// Pub/sub channel prefixes
const (
	ChannelPool = "eco:pool"
)

type Cache struct {
	store kv.Store
	// client is set when store is Redis; pub/sub then goes through Redis too
	client *redis.Client
	// hub carries pub/sub when running on the in-memory store
	hub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(store kv.Store, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	c := &Cache{
		store:   store,
		logger:  logger,
		metrics: m,
	}
	if rs, ok := store.(*kvredis.Store); ok {
		c.client = rs.Client()
	} else {
		c.hub = NewPubSubHub()
		if logger != nil {
			logger.Infow("Using in-memory pub/sub")
		}
	}
	return c
}

func PoolAggregateKey(poolID string) string {
	return fmt.Sprintf("%s:%s", KeyPoolAggregate, poolID)
}

func UserStakeKey(poolID, address string) string {
	return fmt.Sprintf("%s:%s:%s", KeyUserStake, poolID, strings.ToLower(address))
}

func PoolChannel(poolID string) string {
	return fmt.Sprintf("%s:%s", ChannelPool, poolID)
}

// keyFamily trims ids off a key so metric labels stay low cardinality.
func keyFamily(key string) string {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ":")
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, keyFamily(key))
			}
			return ErrCacheMiss
		}
		if c.logger != nil {
			c.logger.Errorw("Cache get error", "key", key, "error", err)
		}
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, keyFamily(key))
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.store.Set(ctx, key, data, ttl); err != nil {
		if c.logger != nil {
			c.logger.Errorw("Cache set error", "key", key, "error", err)
		}
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Publish JSON-encodes message onto channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Publish error", "channel", channel, "error", err)
			}
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	c.hub.Publish(channel, string(data))
	return nil
}

// Subscribe returns a subscription that ends when ctx is done or Close is called.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	if c.client != nil {
		return newRedisSubscription(ctx, c.client.Subscribe(ctx, channels...))
	}
	return c.hub.Subscribe(ctx, channels...)
}

// IsInMemoryMode returns true if the cache is not backed by Redis
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *Cache) Close() error {
	return c.store.Close()
}
