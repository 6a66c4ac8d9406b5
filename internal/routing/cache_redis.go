package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces route entries in a shared Redis.
const redisKeyPrefix = "placemap:route:"

// redisCacheStore is a CacheStore backed by Redis; expiry is delegated to
// Redis key TTLs.
type redisCacheStore struct {
	client redis.Cmdable
}

// NewRedisCacheStore creates a CacheStore backed by client.
func NewRedisCacheStore(client redis.Cmdable) CacheStore {
	return &redisCacheStore{client: client}
}

func (s *redisCacheStore) GetCachedRoutes(ctx context.Context, key string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	payload, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("routing: redis cache: get: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("routing: redis cache: decode: %w", err)
	}
	return &resp, nil
}

func (s *redisCacheStore) SetCachedRoutes(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("routing: redis cache: encode: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("routing: redis cache: set: %w", err)
	}
	return nil
}

// noopCacheStore never hits and drops writes.
type noopCacheStore struct{}

// NewNoopCacheStore returns a CacheStore that caches nothing.
func NewNoopCacheStore() CacheStore { return noopCacheStore{} }

func (noopCacheStore) GetCachedRoutes(context.Context, string) (*Response, error) { return nil, nil }

func (noopCacheStore) SetCachedRoutes(context.Context, string, *Response, time.Duration) error {
	return nil
}
