package geocoding

import (
	"context"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// Coalescing wraps a Geocoder so that concurrent lookups of the same address
// share one upstream call. Many sessions open the same place at once, and the
// upstream is rate limited.
type Coalescing struct {
	inner Geocoder
	group singleflight.Group
}

// NewCoalescing wraps inner.
func NewCoalescing(inner Geocoder) *Coalescing {
	return &Coalescing{inner: inner}
}

func (c *Coalescing) Geocode(ctx context.Context, address string) (*Result, error) {
	key := "fwd:" + strings.ToLower(strings.TrimSpace(address))
	return c.do(ctx, key, func(shared context.Context) (*Result, error) {
		return c.inner.Geocode(shared, address)
	})
}

func (c *Coalescing) Reverse(ctx context.Context, at geo.Coordinate) (*Result, error) {
	return c.do(ctx, "rev:"+at.String(), func(shared context.Context) (*Result, error) {
		return c.inner.Reverse(shared, at)
	})
}

// do runs lookup once per key among concurrent callers. The shared lookup is
// detached from any single caller; each caller stops waiting when its own
// context is done.
func (c *Coalescing) do(ctx context.Context, key string, lookup func(context.Context) (*Result, error)) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return lookup(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	}
}
