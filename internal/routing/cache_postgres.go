package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgCacheStore is the CacheStore backed by the route_cache table.
type pgCacheStore struct {
	pool *pgxpool.Pool
}

// NewPgCacheStore creates a CacheStore backed by the given connection pool.
func NewPgCacheStore(pool *pgxpool.Pool) CacheStore {
	return &pgCacheStore{pool: pool}
}

// GetCachedRoutes queries route_cache for a valid (non-expired) entry.
func (s *pgCacheStore) GetCachedRoutes(ctx context.Context, key string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	const q = `
		SELECT payload
		FROM route_cache
		WHERE cache_key  = $1
		  AND expires_at > NOW()`

	var payload []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, fmt.Errorf("routing: cache: get: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("routing: cache: decode: %w", err)
	}
	return &resp, nil
}

// SetCachedRoutes upserts an entry into route_cache. The expiry is computed in
// Go so the TTL has a single source of truth.
func (s *pgCacheStore) SetCachedRoutes(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, cacheQueryTimeout)
	defer cancel()

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("routing: cache: encode: %w", err)
	}

	const q = `
		INSERT INTO route_cache (cache_key, payload, calc_ts, expires_at)
		VALUES ($1, $2, NOW(), $3)
		ON CONFLICT (cache_key)
		DO UPDATE SET
			payload    = EXCLUDED.payload,
			calc_ts    = EXCLUDED.calc_ts,
			expires_at = EXCLUDED.expires_at`

	if _, err := s.pool.Exec(ctx, q, key, payload, time.Now().Add(ttl)); err != nil {
		return fmt.Errorf("routing: cache: set: %w", err)
	}
	return nil
}
