package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/handler"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/session"
	"github.com/FooledKiwi/placemap/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Minimal stubs: satisfy interfaces without a real DB or network.
// ---------------------------------------------------------------------------

type stubPlacesRepo struct{}

func (stubPlacesRepo) Save(context.Context, *storage.Place) error { return nil }
func (stubPlacesRepo) List(context.Context) ([]storage.Place, error) { return nil, nil }
func (stubPlacesRepo) Get(context.Context, int64) (*storage.Place, error) {
	return nil, nil
}

type stubSeeder struct{}

func (stubSeeder) SeedDefaults(context.Context) (int, error) { return 0, nil }

type stubGeocoder struct{}

func (stubGeocoder) Geocode(context.Context, string) (*geocoding.Result, error) {
	return nil, geocoding.ErrNoResult
}

func (stubGeocoder) Reverse(context.Context, geo.Coordinate) (*geocoding.Result, error) {
	return nil, geocoding.ErrNoResult
}

// buildTestEngine replicates the engine wiring from New without a database
// or external API.
func buildTestEngine(t *testing.T, origins []string) *gin.Engine {
	t.Helper()
	registry := session.NewRegistry(stubGeocoder{}, routing.StraightLine{}, session.Config{TTL: time.Minute}, zerolog.Nop())
	t.Cleanup(registry.Close)

	directions := service.NewDirectionsService(stubPlacesRepo{}, stubGeocoder{}, routing.StraightLine{})
	h := handler.New(stubPlacesRepo{}, stubSeeder{}, directions, registry, zerolog.Nop())
	return newEngine(h, origins, zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Smoke tests: verify routes are registered and reachable.
// ---------------------------------------------------------------------------

func TestSmoke_HealthEndpoint(t *testing.T) {
	r := buildTestEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("/health: status = %d, want 200", w.Code)
	}
}

func TestSmoke_RoutesRegistered(t *testing.T) {
	r := buildTestEngine(t, nil)

	// A registered handler answers with JSON, even for 4xx. Gin's own 404 for
	// an unknown path is plain text.
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/places"},
		{http.MethodGet, "/api/v1/places/1"},
		{http.MethodGet, "/api/v1/places/1/image"},
		{http.MethodGet, "/api/v1/places/1/route"},
		{http.MethodPost, "/api/v1/places/seed"},
		{http.MethodPost, "/api/v1/sessions"},
		{http.MethodGet, "/api/v1/sessions/unknown/map"},
		{http.MethodGet, "/api/v1/sessions/unknown/alerts"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, "application/json") {
				t.Errorf("status = %d, Content-Type = %q: route not handled", w.Code, ct)
			}
		})
	}
}

func TestSmoke_UnknownRoute404(t *testing.T) {
	r := buildTestEngine(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stops", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CORS
// ---------------------------------------------------------------------------

func TestCORS_AllowAllWhenUnconfigured(t *testing.T) {
	r := buildTestEngine(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	r := buildTestEngine(t, []string{"http://maps.test"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://maps.test")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://maps.test" {
		t.Errorf("allowed origin: header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin: status = %d, want 403", w.Code)
	}
}

// ---------------------------------------------------------------------------
// DBError
// ---------------------------------------------------------------------------

func TestDBError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&DBError{Op: "ping", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is must see the cause")
	}
	if !strings.Contains(err.Error(), `"ping"`) {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestShutdown_NilSafe(t *testing.T) {
	(&App{log: zerolog.Nop()}).Shutdown()
}
