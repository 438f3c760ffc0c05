// Package geocoding is the client for the external place-details and timezone APIs.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// maxResponseSize caps provider responses (1MB)
const maxResponseSize = 1 << 20

// Cache stores provider responses between runs. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	CacheTTL      time.Duration
}

// Client calls the geocoding provider. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     ectologger.Logger
	now        func() time.Time
}

func NewClient(cfg Config, cache Cache, logger ectologger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// PlaceDetails looks up a place by id.
func (c *Client) PlaceDetails(ctx context.Context, placeID string) (*PlaceDetails, error) {
	ctx, span := tracing.StartSpan(ctx, "geocoding.Client.PlaceDetails")
	defer span.End()

	cacheKey := "place:" + placeID
	var cached PlaceDetails
	if c.readCache(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", placeDetailsFieldMask)

	var resp placeDetailsResponse
	if err := c.get(ctx, "place_details", "/place/details/json", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, providerStatusError("place details", resp.Status, resp.ErrorMessage)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("place details response for %s has no result", placeID)
	}

	c.writeCache(ctx, cacheKey, resp.Result)
	return resp.Result, nil
}

// TimeZone returns the IANA timezone id at the given coordinates.
func (c *Client) TimeZone(ctx context.Context, lat, lng float64) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "geocoding.Client.TimeZone")
	defer span.End()

	location := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	cacheKey := "tz:" + location
	var cached string
	if c.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("location", location)
	params.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))

	var resp timeZoneResponse
	if err := c.get(ctx, "timezone", "/timezone/json", params, &resp); err != nil {
		return "", err
	}
	if resp.Status != StatusOK {
		return "", providerStatusError("timezone", resp.Status, resp.ErrorMessage)
	}
	if resp.TimeZoneID == "" {
		return "", fmt.Errorf("timezone response for %s has no timeZoneId", location)
	}

	c.writeCache(ctx, cacheKey, resp.TimeZoneID)
	return resp.TimeZoneID, nil
}

func (c *Client) get(ctx context.Context, endpoint string, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}
	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.GeocodingRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.GeocodingRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	metrics.GeocodingRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request returned HTTP %d", endpoint, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.cache == nil {
		return false
	}
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Geocoding cache read failed")
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Discarding undecodable geocoding cache entry")
		return false
	}
	metrics.GeocodingCacheHits.Inc()
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, value any) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("Geocoding cache write failed")
	}
}

func providerStatusError(endpoint, status, message string) error {
	if message == "" {
		return fmt.Errorf("%s lookup returned status %s", endpoint, status)
	}
	return fmt.Errorf("%s lookup returned status %s: %s", endpoint, status, message)
}
