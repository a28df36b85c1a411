package nominatim

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// CachedGeocoder keeps recently resolved places in process. Only successful
// lookups are cached.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.Place]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator holding up to maxEntries places.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	cache, _ := lru.New[string, domain.Place](max(maxEntries, 1)) // errors only on size < 1
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lon, lat float64, culture string) (domain.Place, error) {
	key := cacheKey(lon, lat, culture)
	if place, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("memory", "hit").Inc()
		return place, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("memory", "miss").Inc()

	place, err := c.inner.ReverseGeocode(ctx, lon, lat, culture)
	if err != nil {
		return place, err
	}
	c.cache.Add(key, place)
	return place, nil
}

// Len is the number of cached places.
func (c *CachedGeocoder) Len() int { return c.cache.Len() }

// cacheKey rounds to 6 decimals (~0.1m) so repeated submissions from the same
// spot share an entry.
func cacheKey(lon, lat float64, culture string) string {
	return fmt.Sprintf("rev:%s:%.6f,%.6f", culture, lon, lat)
}
