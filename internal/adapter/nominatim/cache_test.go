package nominatim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.Place
	err    error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64, _ string) (domain.Place, error) {
	m.calls++
	return m.result, m.err
}

var athens = domain.Place{Country: "Greece", Municipality: "Municipality of Athens"}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: athens}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	p1, err := cached.ReverseGeocode(context.Background(), 23.7275, 37.9838, "en-US")
	require.NoError(t, err)
	p2, err := cached.ReverseGeocode(context.Background(), 23.7275, 37.9838, "en-US")
	require.NoError(t, err)

	assert.Equal(t, athens, p1)
	assert.Equal(t, athens, p2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("memory", "miss")), 0)
}

func TestCachedGeocoder_CultureIsPartOfKey(t *testing.T) {
	inner := &countingGeocoder{result: athens}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 23.7275, 37.9838, "en-US")
	_, _ = cached.ReverseGeocode(context.Background(), 23.7275, 37.9838, "el-GR")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_ErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{err: &domain.UpstreamError{Locale: "en-US", StatusCode: 502}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), 1, 1, "en-US")
	require.Error(t, err)
	_, err = cached.ReverseGeocode(context.Background(), 1, 1, "en-US")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
}

// --- RedisCache tests ---

func TestRedisCache_UnavailableFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	inner := &countingGeocoder{result: athens}
	metrics := observability.NewMetricsForTesting()
	cached := NewRedisCache(inner, client, time.Hour, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)))

	place, err := cached.ReverseGeocode(context.Background(), 23.7275, 37.9838, "en-US")
	require.NoError(t, err)
	assert.Equal(t, athens, place)
	assert.Equal(t, 1, inner.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("redis", "miss")), 0)
}

func TestRedisCache_InnerErrorPropagates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	want := errors.New("boom")
	cached := NewRedisCache(&countingGeocoder{err: want}, client, time.Hour,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := cached.ReverseGeocode(context.Background(), 1, 1, "el-GR")
	require.ErrorIs(t, err, want)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	require.Error(t, err)
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingGeocoder{result: athens}
	cached := NewCachedGeocoder(inner, 2, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, _ = cached.ReverseGeocode(ctx, 1, 1, "en-US")
	_, _ = cached.ReverseGeocode(ctx, 2, 2, "en-US")
	_, _ = cached.ReverseGeocode(ctx, 1, 1, "en-US") // refreshes (1,1)
	_, _ = cached.ReverseGeocode(ctx, 3, 3, "en-US") // evicts (2,2)
	require.Equal(t, 3, inner.calls)
	assert.Equal(t, 2, cached.Len())

	_, _ = cached.ReverseGeocode(ctx, 1, 1, "en-US")
	assert.Equal(t, 3, inner.calls)
	_, _ = cached.ReverseGeocode(ctx, 2, 2, "en-US")
	assert.Equal(t, 4, inner.calls)
}

func TestCachedGeocoder_ManyEntries(t *testing.T) {
	inner := &countingGeocoder{result: athens}
	cached := NewCachedGeocoder(inner, 100, observability.NewMetricsForTesting())
	for i := range 250 {
		_, err := cached.ReverseGeocode(context.Background(), float64(i), 0, "el-GR")
		require.NoError(t, err)
	}
	assert.Equal(t, 100, cached.Len())
	assert.Equal(t, 250, inner.calls)
}

func TestCachedGeocoder_ZeroSizeStillCaches(t *testing.T) {
	inner := &countingGeocoder{result: athens}
	cached := NewCachedGeocoder(inner, 0, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 1, 1, "en-US")
	_, _ = cached.ReverseGeocode(context.Background(), 1, 1, "en-US")
	assert.Equal(t, 1, inner.calls)
}

func TestCacheKey_RoundsToSixDecimals(t *testing.T) {
	assert.Equal(t, cacheKey(23.72750001, 37.9838, "en-US"), cacheKey(23.7275, 37.98380004, "en-US"))
	assert.NotEqual(t, cacheKey(23.7275, 37.9838, "en-US"), cacheKey(23.7275, 37.9838, "el-GR"))
	assert.Equal(t, "rev:el-GR:23.727500,37.983800", cacheKey(23.7275, 37.9838, "el-GR"))
}
