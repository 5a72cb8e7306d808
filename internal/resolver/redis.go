package resolver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oriys/umbra/internal/logging"
	"github.com/oriys/umbra/internal/metrics"
)

const redisKeyPrefix = "umbra:tenant:"

// RedisLookup is a read-through Redis cache in front of another Lookup,
// for deployments where many instances share one tenant store. Redis
// failures degrade to the inner lookup; the cache is never authoritative.
type RedisLookup struct {
	client *redis.Client
	inner  Lookup
	ttl    time.Duration
}

// NewRedisLookup wraps inner with a shared Redis cache. Pass ttl <= 0 for
// the default.
func NewRedisLookup(client *redis.Client, inner Lookup, ttl time.Duration) *RedisLookup {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &RedisLookup{client: client, inner: inner, ttl: ttl}
}

func (r *RedisLookup) Lookup(ctx context.Context, identifier string) (*Info, error) {
	key := redisKeyPrefix + identifier

	raw, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		var info Info
		if jsonErr := json.Unmarshal(raw, &info); jsonErr == nil {
			metrics.RecordLookupCache(true)
			return &info, nil
		}
		// Corrupt entry: drop it and fall through to the inner lookup.
		r.client.Del(ctx, key)
	} else if err != redis.Nil {
		logging.Op().Warn("tenant lookup cache read failed", "error", err)
	}

	metrics.RecordLookupCache(false)
	info, err := r.inner.Lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(info); jsonErr == nil {
		if setErr := r.client.Set(ctx, key, data, r.ttl).Err(); setErr != nil {
			logging.Op().Warn("tenant lookup cache write failed", "error", setErr)
		}
	}
	return info, nil
}

// Invalidate drops the shared cache entry for one identifier.
func (r *RedisLookup) Invalidate(ctx context.Context, identifier string) {
	if err := r.client.Del(ctx, redisKeyPrefix+identifier).Err(); err != nil {
		logging.Op().Warn("tenant lookup cache invalidation failed", "error", err)
	}
}
