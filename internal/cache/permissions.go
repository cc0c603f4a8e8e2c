package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/reportdesk/api/internal/permissions"
)

const permissionKeyPrefix = "perms:"

type PermissionCache interface {
	Get(ctx context.Context, userID uuid.UUID) (permissions.Set, bool, error)
	Set(ctx context.Context, userID uuid.UUID, set permissions.Set) error
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

type RedisPermissionCache struct {
	client  *redis.Client
	ttl     time.Duration
	lookups *prometheus.CounterVec
}

func NewRedisPermissionCache(client *redis.Client, ttl time.Duration) *RedisPermissionCache {
	return &RedisPermissionCache{client: client, ttl: ttl}
}

// WithLookupCounter records every Get under a "hit", "miss" or "error" label.
func (c *RedisPermissionCache) WithLookupCounter(lookups *prometheus.CounterVec) *RedisPermissionCache {
	c.lookups = lookups
	return c
}

func (c *RedisPermissionCache) observe(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

func permissionKey(userID uuid.UUID) string {
	return permissionKeyPrefix + userID.String()
}

func (c *RedisPermissionCache) Get(ctx context.Context, userID uuid.UUID) (permissions.Set, bool, error) {
	raw, err := c.client.Get(ctx, permissionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.observe("miss")
		return nil, false, nil
	}
	if err != nil {
		c.observe("error")
		return nil, false, err
	}

	var set permissions.Set
	if err := json.Unmarshal(raw, &set); err != nil {
		c.observe("error")
		return nil, false, err
	}
	c.observe("hit")
	return set, true, nil
}

func (c *RedisPermissionCache) Set(ctx context.Context, userID uuid.UUID, set permissions.Set) error {
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, permissionKey(userID), raw, c.ttl).Err()
}

func (c *RedisPermissionCache) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = permissionKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

// NoopPermissionCache is used when Redis is disabled; every lookup misses.
type NoopPermissionCache struct{}

func (NoopPermissionCache) Get(context.Context, uuid.UUID) (permissions.Set, bool, error) {
	return nil, false, nil
}

func (NoopPermissionCache) Set(context.Context, uuid.UUID, permissions.Set) error {
	return nil
}

func (NoopPermissionCache) Invalidate(context.Context, ...uuid.UUID) error {
	return nil
}
