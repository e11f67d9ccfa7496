package distribution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "distribution:version"

// Cache stores finished reports in Redis behind a global version counter.
// A nil Cache, or one without client, always calls the loader.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache helper. A nil logger uses slog.Default.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger.With(slog.String("component", "distribution.cache"))}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX so concurrent initialisers agree on the same version.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"distribution"}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchReport loads a cached report or builds it with loader and stores it.
// The bool result reports whether the value came from the cache. Redis
// failures are logged and never cost the caller a report the loader built.
func (c *Cache) FetchReport(ctx context.Context, key string, loader func(context.Context) (PeriodReport, error)) (PeriodReport, bool, error) {
	if loader == nil {
		return PeriodReport{}, false, errors.New("distribution: cache loader required")
	}
	if c == nil || c.client == nil {
		report, err := loader(ctx)
		return report, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var report PeriodReport
		decodeErr := json.Unmarshal(payload, &report)
		if decodeErr == nil {
			return report, true, nil
		}
		c.logger.Warn("discard undecodable cached report", slog.String("key", key), slog.Any("error", decodeErr))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	report, err := loader(ctx)
	if err != nil {
		return PeriodReport{}, false, err
	}
	raw, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("encode report for cache", slog.String("key", key), slog.Any("error", err))
		return report, false, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return report, false, nil
}

// Bump invalidates every cached report by incrementing the shared version.
// Instances sharing the Redis database see the new version on their next key build.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
