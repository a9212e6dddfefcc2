package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/escalation-engine/internal/clock"
)

// MetricsCache fronts the metrics aggregator. Entries are keyed by
// (tenant, metric type, window) and expire after a short TTL; it is the
// only component allowed to serve slightly stale data.
type MetricsCache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenantID string) error
}

// Key builds the cache key for a tenant scoped metrics query.
func Key(tenantID, metricType string, from, to time.Time, extra string) string {
	key := fmt.Sprintf("metrics:%s:%s:%d:%d", tenantID, metricType, from.Unix(), to.Unix())
	if extra != "" {
		key += ":" + extra
	}
	return key
}

func tenantPrefix(tenantID string) string {
	return "metrics:" + tenantID + ":"
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client as a MetricsCache.
func NewRedisCache(client *redis.Client) MetricsCache {
	return &redisCache{client: client}
}

func (c *redisCache) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

func (c *redisCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	iter := c.client.Scan(ctx, 0, tenantPrefix(tenantID)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

type memoryCache struct {
	mu      sync.Mutex
	clk     clock.Clock
	entries map[string]memoryEntry
}

// NewMemoryCache returns a process-local MetricsCache, used when redis is
// unavailable and in tests.
func NewMemoryCache(clk clock.Clock) MetricsCache {
	return &memoryCache{clk: clk, entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(ctx context.Context, key string, out any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.clk.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{raw: raw, expiresAt: c.clk.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	prefix := tenantPrefix(tenantID)
	c.mu.Lock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
	return nil
}
