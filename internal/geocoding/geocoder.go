// Package geocoding resolves textual addresses into coordinates and back.
package geocoding

import (
	"context"
	"errors"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// ErrNoResult is returned when the provider found nothing for the query.
// Callers should use errors.Is to distinguish it from transport failures.
var ErrNoResult = errors.New("geocoding: no result")

// Result is a resolved location.
type Result struct {
	Coordinate  geo.Coordinate
	DisplayName string
}

// Geocoder resolves addresses to coordinates (Geocode) and coordinates to
// addresses (Reverse).
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Result, error)
	Reverse(ctx context.Context, c geo.Coordinate) (*Result, error)
}
