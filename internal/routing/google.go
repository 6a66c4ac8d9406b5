// Package routing computes routes between coordinates and caches the results.
package routing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// routesAPIURL is the Google Routes API v2 endpoint.
	routesAPIURL = "https://routes.googleapis.com/directions/v2:computeRoutes"

	// googleTimeout is the maximum duration for a Google API call.
	googleTimeout = 5 * time.Second

	// httpMaxIdleConns is the maximum number of idle (keep-alive) connections
	// kept in the transport pool across all hosts.
	httpMaxIdleConns = 10

	// httpIdleConnTimeout is how long an idle connection is kept in the pool.
	httpIdleConnTimeout = 30 * time.Second
)

// GoogleRouter implements Router using the Google Routes API v2.
type GoogleRouter struct {
	apiKey     string
	httpClient *http.Client
	// apiURL is the Google Routes API endpoint. Overrideable in tests.
	apiURL string
}

// NewGoogleRouter creates a Router backed by the Google Routes API v2.
// apiKey must be a valid Google Cloud API key with the Routes API enabled.
func NewGoogleRouter(apiKey string) *GoogleRouter {
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	return &GoogleRouter{
		apiKey: apiKey,
		apiURL: routesAPIURL,
		httpClient: &http.Client{
			Timeout:   googleTimeout,
			Transport: transport,
		},
	}
}

// Directions calls the Google Routes API v2 and returns every route it
// computed. An empty route list is not an error.
func (g *GoogleRouter) Directions(ctx context.Context, req Request) (*Response, error) {
	mode := req.Mode
	if mode == "" {
		mode = Driving
	}

	body := routesAPIRequest{
		Origin:                 waypoint(req.Origin.Lat, req.Origin.Lon),
		Destination:            waypoint(req.Destination.Lat, req.Destination.Lon),
		TravelMode:             string(mode),
		ComputeAlternateRoutes: req.Alternates,
		Units:                  "METRIC",
	}
	// Routing preference is only accepted for DRIVE and TWO_WHEELER.
	if mode == Driving {
		body.RoutingPreference = "TRAFFIC_AWARE"
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("routing: google: marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, googleTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, g.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("routing: google: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", g.apiKey)
	// Request only the fields we need to minimize response size and latency.
	httpReq.Header.Set("X-Goog-FieldMask", "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline")

	httpResp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("routing: google: http: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("routing: google: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing: google: status %d: %s", httpResp.StatusCode, string(respBytes))
	}

	var apiResp routesAPIResponse
	if err := json.Unmarshal(respBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("routing: google: unmarshal response: %w", err)
	}

	out := &Response{Routes: make([]Route, 0, len(apiResp.Routes))}
	for i, r := range apiResp.Routes {
		durationS, err := parseDurationSeconds(r.Duration)
		if err != nil {
			return nil, fmt.Errorf("routing: google: route %d: parse duration %q: %w", i, r.Duration, err)
		}
		out.Routes = append(out.Routes, Route{
			Polyline:  r.Polyline.EncodedPolyline,
			DistanceM: r.DistanceMeters,
			DurationS: durationS,
		})
	}

	return out, nil
}

// parseDurationSeconds parses a Google duration string like "123s" into an integer.
func parseDurationSeconds(s string) (int, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty duration string")
	}
	if s[len(s)-1] != 's' {
		return 0, fmt.Errorf("expected duration ending in 's', got %q", s)
	}
	numStr := s[:len(s)-1]
	if len(numStr) == 0 {
		return 0, fmt.Errorf("no number before 's' in %q", s)
	}
	for _, ch := range numStr {
		if ch < '0' || ch > '9' {
			return 0, fmt.Errorf("non-integer duration %q", s)
		}
	}
	var seconds int
	if _, err := fmt.Sscanf(numStr, "%d", &seconds); err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return seconds, nil
}

func waypoint(lat, lon float64) routesAPIWaypoint {
	return routesAPIWaypoint{
		Location: routesAPILocation{
			LatLng: routesAPILatLng{Latitude: lat, Longitude: lon},
		},
	}
}

// --- JSON types for the Google Routes API v2 ---

type routesAPIRequest struct {
	Origin                 routesAPIWaypoint `json:"origin"`
	Destination            routesAPIWaypoint `json:"destination"`
	TravelMode             string            `json:"travelMode"`
	RoutingPreference      string            `json:"routingPreference,omitempty"`
	ComputeAlternateRoutes bool              `json:"computeAlternateRoutes"`
	Units                  string            `json:"units"`
}

type routesAPIWaypoint struct {
	Location routesAPILocation `json:"location"`
}

type routesAPILocation struct {
	LatLng routesAPILatLng `json:"latLng"`
}

type routesAPILatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type routesAPIResponse struct {
	Routes []routesAPIRoute `json:"routes"`
}

type routesAPIRoute struct {
	DistanceMeters int               `json:"distanceMeters"`
	Duration       string            `json:"duration"`
	Polyline       routesAPIPolyline `json:"polyline"`
}

type routesAPIPolyline struct {
	EncodedPolyline string `json:"encodedPolyline"`
}
