// Package service holds stateless use cases built on the repositories and
// external clients.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/storage"
)

var (
	// ErrPlaceNotFound is returned by RouteToPlace when the place does not
	// exist. Callers should use errors.Is to distinguish it from other errors.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrPlaceHasNoAddress is returned when the place cannot be geocoded
	// because it has no address.
	ErrPlaceHasNoAddress = errors.New("place has no address")
)

// PlaceRoute is the result of RouteToPlace.
type PlaceRoute struct {
	Place       *storage.Place
	Destination geo.Coordinate
	Routes      []routing.Route
	IsFallback  bool
	// Summary describes the fastest route; empty when there are no routes.
	Summary string
}

// DirectionsService answers one-off "how do I drive to this place" queries
// without a map session.
type DirectionsService struct {
	places   storage.PlacesRepository
	geocoder geocoding.Geocoder
	router   routing.Router
}

// NewDirectionsService creates a DirectionsService.
//
//   - router should be a *routing.CachedRouter in production so repeated
//     queries from the same area reuse results.
func NewDirectionsService(places storage.PlacesRepository, geocoder geocoding.Geocoder, router routing.Router) *DirectionsService {
	return &DirectionsService{
		places:   places,
		geocoder: geocoder,
		router:   router,
	}
}

// RouteToPlace geocodes the address of the place identified by placeID and
// computes driving routes, with alternates, from origin to it.
//
// Errors:
//   - ErrPlaceNotFound (wrapped) if the place does not exist.
//   - ErrPlaceHasNoAddress (wrapped) if it has no address.
//   - geocoding.ErrNoResult (wrapped) if the address does not resolve.
func (s *DirectionsService) RouteToPlace(ctx context.Context, origin geo.Coordinate, placeID int64) (*PlaceRoute, error) {
	place, err := s.places.Get(ctx, placeID)
	if err != nil {
		return nil, fmt.Errorf("service: RouteToPlace: fetch place %d: %w", placeID, err)
	}
	if place == nil {
		return nil, fmt.Errorf("service: RouteToPlace: place %d: %w", placeID, ErrPlaceNotFound)
	}
	if place.Address == nil || *place.Address == "" {
		return nil, fmt.Errorf("service: RouteToPlace: place %d: %w", placeID, ErrPlaceHasNoAddress)
	}

	dest, err := s.geocoder.Geocode(ctx, *place.Address)
	if err != nil {
		return nil, fmt.Errorf("service: RouteToPlace: geocode place %d: %w", placeID, err)
	}

	resp, err := s.router.Directions(ctx, routing.Request{
		Origin:      origin,
		Destination: dest.Coordinate,
		Mode:        routing.Driving,
		Alternates:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("service: RouteToPlace: route to place %d: %w", placeID, err)
	}

	out := &PlaceRoute{
		Place:       place,
		Destination: dest.Coordinate,
		Routes:      resp.Routes,
		IsFallback:  resp.IsFallback,
	}
	if fastest, ok := routing.Fastest(resp.Routes); ok {
		out.Summary = routing.Summary(fastest)
	}
	return out, nil
}
