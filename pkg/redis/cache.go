package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GeocodeCache stores geocoding provider responses under a key prefix.
type GeocodeCache struct {
	client    *Client
	keyPrefix string
}

func NewGeocodeCache(client *Client, keyPrefix string) *GeocodeCache {
	if keyPrefix == "" {
		keyPrefix = "fern:geocode:"
	}
	return &GeocodeCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the cached value for key and whether it was present.
func (c *GeocodeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key. A zero ttl keeps the entry until evicted.
func (c *GeocodeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.rdb.Set(ctx, c.keyPrefix+key, value, ttl).Err()
}
