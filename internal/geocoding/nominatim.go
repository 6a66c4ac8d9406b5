package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/FooledKiwi/placemap/internal/geo"
)

const (
	// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
	DefaultNominatimURL = "https://nominatim.openstreetmap.org"

	// nominatimTimeout bounds a single upstream call.
	nominatimTimeout = 5 * time.Second
)

// Nominatim is a Geocoder backed by an OSM Nominatim instance. Calls are rate
// limited because the public instance allows one request per second.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewNominatim creates a Nominatim geocoder. rps <= 0 disables rate limiting.
func NewNominatim(baseURL, userAgent string, rps float64, log zerolog.Logger) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		client:    &http.Client{Timeout: nominatimTimeout},
		limiter:   rate.NewLimiter(limit, 1),
		log:       log,
	}
}

// Geocode returns the best match for address.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	params := url.Values{}
	params.Add("q", address)
	params.Add("format", "json")
	params.Add("limit", "1")

	var raw []nominatimPlace
	if err := n.get(ctx, "/search", params, &raw); err != nil {
		return nil, fmt.Errorf("geocoding: Geocode %q: %w", address, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("geocoding: Geocode %q: %w", address, ErrNoResult)
	}

	res, err := raw[0].result()
	if err != nil {
		return nil, fmt.Errorf("geocoding: Geocode %q: %w", address, err)
	}
	return res, nil
}

// Reverse returns the address closest to c.
func (n *Nominatim) Reverse(ctx context.Context, c geo.Coordinate) (*Result, error) {
	params := url.Values{}
	params.Add("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	params.Add("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
	params.Add("format", "json")

	var raw nominatimPlace
	if err := n.get(ctx, "/reverse", params, &raw); err != nil {
		return nil, fmt.Errorf("geocoding: Reverse %s: %w", c, err)
	}
	if raw.Error != "" || raw.Lat == "" {
		return nil, fmt.Errorf("geocoding: Reverse %s: %w", c, ErrNoResult)
	}

	res, err := raw.result()
	if err != nil {
		return nil, fmt.Errorf("geocoding: Reverse %s: %w", c, err)
	}
	return res, nil
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", n.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Error().Err(err).Str("path", path).Msg("nominatim request failed")
		return fmt.Errorf("http: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		n.log.Error().Int("status", resp.StatusCode).Str("path", path).Msg("nominatim upstream error")
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// nominatimPlace mirrors the relevant parts of the search and reverse payloads.
type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Error       string `json:"error"`
}

func (p nominatimPlace) result() (*Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}
	return &Result{
		Coordinate:  geo.Coordinate{Lat: lat, Lon: lon},
		DisplayName: p.DisplayName,
	}, nil
}
