package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/lueurxax/insights-engine/internal/platform/observability"
)

const (
	metricOutcomeOK    = "ok"
	metricOutcomeError = "error"
	metricLookupHit    = "hit"
	metricLookupMiss   = "miss"
	logKeyTags         = "tags"

	// Tag sets outlive their views so an invalidation still finds every key.
	tagSetTTLFactor = 2
)

// ViewCache stores rendered read views.
type ViewCache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Set(ctx context.Context, key string, v interface{}, tags ...string) error
}

// RedisViews caches JSON encoded views with a TTL and registers them under tags.
type RedisViews struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisViews creates a Redis view cache.
func NewRedisViews(client redis.Cmdable, ttl time.Duration) *RedisViews {
	return &RedisViews{client: client, ttl: ttl}
}

// Get decodes the cached view into dst. ok is false on a miss.
func (v *RedisViews) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := v.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.CacheViewLookups.WithLabelValues(metricLookupMiss).Inc()

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("get view %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode view %s: %w", key, err)
	}

	observability.CacheViewLookups.WithLabelValues(metricLookupHit).Inc()

	return true, nil
}

// Set stores value under key and adds key to every tag set.
func (v *RedisViews) Set(ctx context.Context, key string, value interface{}, tags ...string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", key, err)
	}

	_, err = v.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, raw, v.ttl)

		for _, tag := range tags {
			pipe.SAdd(ctx, tagSetKey(tag), key)
			pipe.Expire(ctx, tagSetKey(tag), v.ttl*tagSetTTLFactor)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("set view %s: %w", key, err)
	}

	return nil
}

// NopViews never caches.
type NopViews struct{}

// Get always misses.
func (NopViews) Get(context.Context, string, interface{}) (bool, error) {
	return false, nil
}

// Set discards the view.
func (NopViews) Set(context.Context, string, interface{}, ...string) error {
	return nil
}
