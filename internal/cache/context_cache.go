// Package cache provides an optional Redis-backed mirror of the C6
// context queries, invalidated on every lifecycle write.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pilot-net/nsp-alarm-ingester/pkg/alarm"
)

const (
	keyPrefix       = "nsp-alarm-ingester:ctx:"
	powerIssuesKey  = keyPrefix + "power-issues"
	losRootsKey     = keyPrefix + "los-roots"
	defaultCacheTTL = 30 * time.Second
)

// RootQuerier is the underlying source of truth the cache falls back to
// on a miss — satisfied by *store.Store.
type RootQuerier interface {
	ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error)
	ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error)
}

// ContextCache wraps a RootQuerier with a short-TTL Redis mirror, the
// "in-memory index... invalidated on lifecycle writes" alternative design
// the source's design notes call out as implementation freedom. It
// implements normalizer.ContextProvider and store.Invalidator.
type ContextCache struct {
	client *redis.Client
	source RootQuerier
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Redis-backed context cache in front of source.
func New(redisURL string, source RootQuerier, logger *slog.Logger) (*ContextCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &ContextCache{client: client, source: source, ttl: defaultCacheTTL, logger: logger}, nil
}

// ActivePowerIssues serves from cache when present, otherwise queries the
// source and repopulates the cache.
func (c *ContextCache) ActivePowerIssues(ctx context.Context) ([]alarm.RootRef, error) {
	return c.cachedRoots(ctx, powerIssuesKey, c.source.ActivePowerIssues)
}

// ActiveLOSRoots serves from cache when present, otherwise queries the
// source and repopulates the cache.
func (c *ContextCache) ActiveLOSRoots(ctx context.Context) ([]alarm.RootRef, error) {
	return c.cachedRoots(ctx, losRootsKey, c.source.ActiveLOSRoots)
}

func (c *ContextCache) cachedRoots(ctx context.Context, key string, fetch func(context.Context) ([]alarm.RootRef, error)) ([]alarm.RootRef, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var roots []alarm.RootRef
		if jsonErr := json.Unmarshal(data, &roots); jsonErr == nil {
			return roots, nil
		}
	}
	if err != nil && err != redis.Nil {
		c.logger.Warn("context cache read failed, querying store directly", "key", key, "error", err)
	}

	roots, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(roots); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("context cache write failed", "key", key, "error", err)
		}
	}
	return roots, nil
}

// Invalidate drops both cached root sets. Called by the lifecycle store
// after every committed ApplyAlarm, since either query's result set may
// have changed; alarmID is accepted for logging only, the cache is not
// keyed per-alarm.
func (c *ContextCache) Invalidate(ctx context.Context, alarmID string) {
	if err := c.client.Del(ctx, powerIssuesKey, losRootsKey).Err(); err != nil {
		c.logger.Warn("context cache invalidation failed", "alarm_id", alarmID, "error", err)
	}
}
