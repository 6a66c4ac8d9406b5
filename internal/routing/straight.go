package routing

import (
	"context"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// straightLineSpeedMPS is the assumed speed for estimates (~30 km/h, typical
// urban driving).
const straightLineSpeedMPS = 30.0 / 3.6

// StraightLine is a Router that estimates a single route along the
// great-circle line. It is used when no routing provider is configured.
type StraightLine struct{}

// Directions returns one straight-line route flagged as a fallback.
func (StraightLine) Directions(_ context.Context, req Request) (*Response, error) {
	distM := geo.Distance(req.Origin, req.Destination)
	return &Response{
		Routes: []Route{{
			Polyline:  geo.EncodePolyline([]geo.Coordinate{req.Origin, req.Destination}),
			DistanceM: int(distM),
			DurationS: int(distM / straightLineSpeedMPS),
		}},
		IsFallback: true,
	}, nil
}
