package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

// DefaultUserAgent identifies requests for cultures without a configured identity.
const DefaultUserAgent = "alerthub-service/1.0"

// DefaultIdentities are the outbound User-Agent strings used per culture.
var DefaultIdentities = map[string]string{
	domain.CultureGreek:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/110.0.0.0 Safari/537.36",
	domain.CultureEnglish: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:110.0) Gecko/20100101 Firefox/110.0",
}

// Client implements domain.Geocoder against a Nominatim-compatible reverse
// geocoding endpoint. It never retries.
type Client struct {
	urlTemplate string
	identities  map[string]string
	httpClient  *http.Client
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a reverse geocoding client. urlTemplate must contain the
// {longitude}, {latitude} and {language} placeholders.
func NewClient(urlTemplate string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		urlTemplate: urlTemplate,
		identities:  DefaultIdentities,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode resolves lon/lat into country and municipality in culture.
func (c *Client) ReverseGeocode(ctx context.Context, lon, lat float64, culture string) (domain.Place, error) {
	u := c.buildURL(lon, lat, culture)
	c.logger.Debug("reverse geocode request", "url", u, "culture", culture)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Place{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.identity(culture))
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.GeocodeAPIDuration.WithLabelValues(culture).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Place{}, &domain.UpstreamError{Locale: culture, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Place{}, &domain.UpstreamError{
			Locale:     culture,
			StatusCode: resp.StatusCode,
			Reason:     strings.TrimSpace(string(body)),
		}
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("incomplete").Inc()
		return domain.Place{}, &domain.UpstreamError{Locale: culture, Reason: "decode response: " + err.Error()}
	}

	switch {
	case payload.Address.Country == nil:
		c.metrics.GeocodeRequests.WithLabelValues("incomplete").Inc()
		return domain.Place{}, &domain.UpstreamError{Locale: culture, Reason: "missing address.country"}
	case payload.Address.Municipality == nil:
		c.metrics.GeocodeRequests.WithLabelValues("incomplete").Inc()
		return domain.Place{}, &domain.UpstreamError{Locale: culture, Reason: "missing address.municipality"}
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return domain.Place{
		Country:      *payload.Address.Country,
		Municipality: *payload.Address.Municipality,
	}, nil
}

func (c *Client) buildURL(lon, lat float64, culture string) string {
	return strings.NewReplacer(
		"{longitude}", strconv.FormatFloat(lon, 'f', -1, 64),
		"{latitude}", strconv.FormatFloat(lat, 'f', -1, 64),
		"{language}", domain.Language(culture),
	).Replace(c.urlTemplate)
}

func (c *Client) identity(culture string) string {
	if ua, ok := c.identities[culture]; ok {
		return ua
	}
	return DefaultUserAgent
}

// Nominatim API response types.

type response struct {
	Address address `json:"address"`
}

type address struct {
	Country      *string `json:"country"`
	Municipality *string `json:"municipality"`
}
