// Package geo holds the coordinate and region math shared by the map surface,
// the coordinator and the routing clients.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/twpayne/go-polyline"
)

// Coordinate is a WGS-84 position.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Point converts c into an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Valid reports whether c lies within the WGS-84 range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}

// FromPoint converts an orb point back into a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b Coordinate) float64 {
	return orbgeo.DistanceHaversine(a.Point(), b.Point())
}

// Region is a visible map area: a center plus its north-south and east-west
// extent in meters.
type Region struct {
	Center    Coordinate `json:"center"`
	LatMeters float64    `json:"lat_meters"`
	LonMeters float64    `json:"lon_meters"`
}

// RegionAround returns a region of latMeters x lonMeters centered on c.
func RegionAround(c Coordinate, latMeters, lonMeters float64) Region {
	return Region{Center: c, LatMeters: latMeters, LonMeters: lonMeters}
}

// RegionFromBound returns the smallest region covering b.
func RegionFromBound(b orb.Bound) Region {
	return Region{
		Center:    FromPoint(b.Center()),
		LatMeters: orbgeo.BoundHeight(b),
		LonMeters: orbgeo.BoundWidth(b),
	}
}

// DecodePolyline decodes a Google encoded polyline (1e-5 precision).
func DecodePolyline(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("geo: decode polyline: %w", err)
	}
	out := make([]Coordinate, len(coords))
	for i, c := range coords {
		out[i] = Coordinate{Lat: c[0], Lon: c[1]}
	}
	return out, nil
}

// EncodePolyline encodes path as a Google encoded polyline.
func EncodePolyline(path []Coordinate) string {
	coords := make([][]float64, len(path))
	for i, c := range path {
		coords[i] = []float64{c.Lat, c.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// BoundOf returns the bounding box of path. ok is false when path is empty.
func BoundOf(path []Coordinate) (b orb.Bound, ok bool) {
	if len(path) == 0 {
		return orb.Bound{}, false
	}
	ls := make(orb.LineString, len(path))
	for i, c := range path {
		ls[i] = c.Point()
	}
	return ls.Bound(), true
}
