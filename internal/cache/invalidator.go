package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lueurxax/insights-engine/internal/platform/observability"
)

// Invalidator drops cached views carrying any of the given tags.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) error
}

// InvalidationMessage is published on InvalidationChannel.
type InvalidationMessage struct {
	Tags []string  `json:"tags"`
	At   time.Time `json:"at"`
}

// RedisInvalidator deletes tagged view keys and announces the tags to subscribers.
type RedisInvalidator struct {
	client redis.Cmdable
	logger *zerolog.Logger
	now    func() time.Time
}

// NewRedisInvalidator creates a Redis backed invalidator.
func NewRedisInvalidator(client redis.Cmdable, logger *zerolog.Logger) *RedisInvalidator {
	return &RedisInvalidator{client: client, logger: logger, now: time.Now}
}

// Invalidate implements Invalidator.
func (i *RedisInvalidator) Invalidate(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	keys := make([]string, 0, len(tags))

	for _, tag := range tags {
		members, err := i.client.SMembers(ctx, tagSetKey(tag)).Result()
		if err != nil {
			observability.CacheInvalidations.WithLabelValues(metricOutcomeError).Inc()

			return fmt.Errorf("read tag %s: %w", tag, err)
		}

		keys = append(keys, members...)
		keys = append(keys, tagSetKey(tag))
	}

	payload, err := json.Marshal(InvalidationMessage{Tags: tags, At: i.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode invalidation message: %w", err)
	}

	_, err = i.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.Publish(ctx, InvalidationChannel, payload)

		return nil
	})
	if err != nil {
		observability.CacheInvalidations.WithLabelValues(metricOutcomeError).Inc()

		return fmt.Errorf("invalidate tags: %w", err)
	}

	observability.CacheInvalidations.WithLabelValues(metricOutcomeOK).Inc()

	i.logger.Debug().Strs(logKeyTags, tags).Int("keys", len(keys)).Msg("cache tags invalidated")

	return nil
}

// LogInvalidator only records invalidations. Used when no Redis is configured;
// subjects.cache_invalidated_at stays the source of truth.
type LogInvalidator struct {
	logger *zerolog.Logger
}

// NewLogInvalidator creates a log-only invalidator.
func NewLogInvalidator(logger *zerolog.Logger) *LogInvalidator {
	return &LogInvalidator{logger: logger}
}

// Invalidate implements Invalidator.
func (i *LogInvalidator) Invalidate(_ context.Context, tags ...string) error {
	observability.CacheInvalidations.WithLabelValues(metricOutcomeOK).Inc()

	i.logger.Info().Strs(logKeyTags, tags).Msg("cache tags invalidated")

	return nil
}
