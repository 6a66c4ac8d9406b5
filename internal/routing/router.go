package routing

import (
	"context"
	"fmt"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// TransportMode selects the kind of route to compute.
type TransportMode string

const (
	// Driving routes follow the road network for cars.
	Driving TransportMode = "DRIVE"
)

// Request holds the origin and destination of a route calculation.
type Request struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Mode        TransportMode
	// Alternates asks the provider for alternative routes besides the primary.
	Alternates bool
}

// Route is one candidate path between origin and destination.
type Route struct {
	// Polyline is the path in Google's Encoded Polyline Algorithm format.
	Polyline  string `json:"polyline"`
	DistanceM int    `json:"distance_m"`
	DurationS int    `json:"duration_s"`
}

// Response holds every candidate route returned for a Request, in provider
// order. Routes may be empty when no path exists.
type Response struct {
	Routes []Route `json:"routes"`

	// IsFallback is true when the routes are straight-line estimates rather
	// than provider results.
	IsFallback bool `json:"is_fallback"`
}

// Router calculates routes between two geographic points.
type Router interface {
	Directions(ctx context.Context, req Request) (*Response, error)
}

// Fastest returns the route with the smallest expected travel time. The first
// one wins on ties. ok is false when routes is empty.
func Fastest(routes []Route) (fastest Route, ok bool) {
	if len(routes) == 0 {
		return Route{}, false
	}
	fastest = routes[0]
	for _, r := range routes[1:] {
		if r.DurationS < fastest.DurationS {
			fastest = r
		}
	}
	return fastest, true
}

// FormatDistanceKm renders meters as kilometers with one decimal.
func FormatDistanceKm(meters int) string {
	return fmt.Sprintf("%.1f", float64(meters)/1000)
}

// FormatMinutes renders seconds as whole minutes.
func FormatMinutes(seconds int) string {
	return fmt.Sprintf("%.0f", float64(seconds)/60)
}

// Summary is the display text for a selected route.
func Summary(r Route) string {
	return fmt.Sprintf("Distance %s km, travel time %s min", FormatDistanceKm(r.DistanceM), FormatMinutes(r.DurationS))
}
