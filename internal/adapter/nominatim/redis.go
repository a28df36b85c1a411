package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// RedisCache shares resolved places between worker replicas. Redis failures
// fall through to the inner geocoder.
type RedisCache struct {
	inner   domain.Geocoder
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// NewRedisCache creates a Redis-backed cache decorator around a geocoder.
func NewRedisCache(inner domain.Geocoder, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *RedisCache) ReverseGeocode(ctx context.Context, lon, lat float64, culture string) (domain.Place, error) {
	key := "alerthub:geocode:" + cacheKey(lon, lat, culture)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var place domain.Place
		if jsonErr := json.Unmarshal(data, &place); jsonErr == nil {
			c.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			return place, nil
		}
		c.logger.Warn("discarding corrupt geocode cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("geocode cache read failed", "key", key, "error", err)
	}
	c.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()

	place, err := c.inner.ReverseGeocode(ctx, lon, lat, culture)
	if err != nil {
		return place, err
	}

	if data, err := json.Marshal(place); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("geocode cache write failed", "key", key, "error", err)
		}
	}
	return place, nil
}
