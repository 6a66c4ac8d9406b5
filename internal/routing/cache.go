package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcloughlin/geohash"
)

const (
	// cacheTTL is how long a cached route entry remains valid.
	cacheTTL = 120 * time.Second

	// cacheQueryTimeout is the deadline for each cache read/write.
	cacheQueryTimeout = 5 * time.Second

	// geohashPrecision controls the spatial resolution of both endpoints.
	// Precision 7 is roughly a 150m x 150m cell, small enough that a cached
	// route still starts at the user's block.
	geohashPrecision = 7
)

// CacheStore abstracts the persistence layer for route caching.
type CacheStore interface {
	// GetCachedRoutes returns the cached Response for key, or (nil, nil) when
	// there is no valid (non-expired) entry.
	GetCachedRoutes(ctx context.Context, key string) (*Response, error)

	// SetCachedRoutes stores resp under key with an expiry of now + ttl.
	SetCachedRoutes(ctx context.Context, key string, resp *Response, ttl time.Duration) error
}

// Logger is a printf-style logging function injected into CachedRouter.
type Logger func(format string, args ...any)

// CachedRouter wraps another Router and transparently caches its results.
// Cache keys combine geohashes of origin and destination with the request
// options.
type CachedRouter struct {
	inner      Router
	store      CacheStore
	ttl        time.Duration
	logger     Logger // called when cache reads or async writes fail; nil = silent
	afterStore func() // optional hook called after every async store attempt; used in tests for synchronization
}

// CachedRouterOption configures a CachedRouter.
type CachedRouterOption func(*CachedRouter)

// WithLogger sets a logger that is called when a cache operation fails.
func WithLogger(l Logger) CachedRouterOption {
	return func(r *CachedRouter) { r.logger = l }
}

// WithTTL overrides the default cache entry lifetime.
func WithTTL(d time.Duration) CachedRouterOption {
	return func(r *CachedRouter) { r.ttl = d }
}

// withAfterStore sets a hook called after every async store attempt (success or
// failure). Intended exclusively for test synchronization.
func withAfterStore(fn func()) CachedRouterOption {
	return func(r *CachedRouter) { r.afterStore = fn }
}

// NewCachedRouter wraps inner with a cache-aside layer backed by store.
func NewCachedRouter(inner Router, store CacheStore, opts ...CachedRouterOption) *CachedRouter {
	r := &CachedRouter{inner: inner, store: store, ttl: cacheTTL}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Directions satisfies the Router interface.
// It checks the cache first; on a miss it delegates to the inner Router and
// persists the result unless it is empty or a fallback estimate.
func (r *CachedRouter) Directions(ctx context.Context, req Request) (*Response, error) {
	key := cacheKey(req)

	cached, err := r.store.GetCachedRoutes(ctx, key)
	if err != nil {
		// Cache read failures are non-fatal: fall through to the real router.
		r.logf("routing: cache: read failed (key=%s): %v", key, err)
	}
	if cached != nil {
		return cached, nil
	}

	resp, err := r.inner.Directions(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.IsFallback || len(resp.Routes) == 0 {
		return resp, nil
	}

	// Persist asynchronously with a background context so a caller that gives
	// up right after the API call does not lose the result for everyone else.
	go func() {
		storeCtx, cancel := context.WithTimeout(context.Background(), cacheQueryTimeout)
		defer cancel()

		if err := r.store.SetCachedRoutes(storeCtx, key, resp, r.ttl); err != nil {
			r.logf("routing: cache: async write failed (key=%s): %v", key, err)
		}

		if r.afterStore != nil {
			r.afterStore()
		}
	}()

	return resp, nil
}

func (r *CachedRouter) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger(format, args...)
	}
}

// cacheKey returns a key identifying the origin cell, destination cell and
// request options.
func cacheKey(req Request) string {
	mode := req.Mode
	if mode == "" {
		mode = Driving
	}
	return fmt.Sprintf("%s:%s:%s:%t",
		geohash.EncodeWithPrecision(req.Origin.Lat, req.Origin.Lon, geohashPrecision),
		geohash.EncodeWithPrecision(req.Destination.Lat, req.Destination.Lon, geohashPrecision),
		mode,
		req.Alternates,
	)
}
