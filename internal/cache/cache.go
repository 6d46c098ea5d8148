// Package cache provides the Redis read-path cache for the trade engine.
// Caching is strictly a freshness optimization: every method is best-effort,
// failures are logged and swallowed, and correctness never depends on it.
// A nil *Cache is valid and disables caching entirely.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/traderisk/trade-engine/internal/metrics"
)

// Cache wraps a Redis client with scoped keys and JSON marshaling.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a cache around a Redis client with the given entry TTL.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// --- Keys ---

func PortfolioKey(id string) string  { return "portfolio:" + id }
func RiskKey(portfolioID string) string { return "risk:" + portfolioID }
func InstrumentKey(id string) string { return "instrument:" + id }

const instrumentListKey = "instruments:list"

// InstrumentListKey returns the key for one page of the instrument list.
func InstrumentListKey(limit, offset int) string {
	return fmt.Sprintf("%s:%d:%d", instrumentListKey, limit, offset)
}

// --- Read/write ---

// GetJSON loads key into v, reporting whether a valid entry was found.
func (c *Cache) GetJSON(ctx context.Context, scope, key string, v any) bool {
	if c == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil || json.Unmarshal(data, v) != nil {
		metrics.CacheMisses.WithLabelValues(scope).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(scope).Inc()
	return true
}

// SetJSON stores v under key for the cache TTL. Marshal or Redis failures
// are dropped; the next read simply misses.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("cache set failed", "key", key, "err", err)
	}
}

// --- Scoped eviction ---

// EvictPortfolio drops one portfolio's cached value.
func (c *Cache) EvictPortfolio(ctx context.Context, portfolioID string) {
	c.del(ctx, PortfolioKey(portfolioID))
}

// EvictRisk drops one portfolio's cached risk snapshot. Scoped: other
// portfolios' risk entries are untouched.
func (c *Cache) EvictRisk(ctx context.Context, portfolioID string) {
	c.del(ctx, RiskKey(portfolioID))
}

// EvictInstruments drops every instrument entry (individual and list).
// Called when instruments are created or modified.
func (c *Cache) EvictInstruments(ctx context.Context) {
	if c == nil {
		return
	}
	for _, pattern := range []string{"instrument:*", instrumentListKey + ":*"} {
		iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			c.del(ctx, iter.Val())
		}
		if err := iter.Err(); err != nil {
			slog.Warn("cache scan failed", "pattern", pattern, "err", err)
		}
	}
}

func (c *Cache) del(ctx context.Context, keys ...string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache eviction failed", "keys", keys, "err", err)
	}
}
