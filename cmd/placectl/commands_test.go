package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/storage"
)

// --- fakes ---

type memPlaces struct {
	saved []storage.Place
}

func (m *memPlaces) Save(_ context.Context, p *storage.Place) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}
	p.ID = int64(len(m.saved) + 1)
	p.HasImage = len(p.Image) > 0
	m.saved = append(m.saved, *p)
	return nil
}

func (m *memPlaces) List(context.Context) ([]storage.Place, error) { return m.saved, nil }

func (m *memPlaces) Get(_ context.Context, id int64) (*storage.Place, error) {
	for _, p := range m.saved {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, nil
}

type fakeSeeder struct{ n int }

func (f fakeSeeder) SeedDefaults(context.Context) (int, error) { return f.n, nil }

var ufa = geo.Coordinate{Lat: 54.7388, Lon: 55.9721}

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(_ context.Context, address string) (*geocoding.Result, error) {
	if address == "nowhere" {
		return nil, geocoding.ErrNoResult
	}
	return &geocoding.Result{Coordinate: ufa, DisplayName: "Ufa, Bashkortostan"}, nil
}

func (fakeGeocoder) Reverse(_ context.Context, at geo.Coordinate) (*geocoding.Result, error) {
	return &geocoding.Result{Coordinate: at, DisplayName: "Lenina 1, Ufa"}, nil
}

type harness struct {
	places *memPlaces
	opened int
	closed int
}

func newHarness() *harness { return &harness{places: &memPlaces{}} }

func (h *harness) open(context.Context) (*backend, error) {
	h.opened++
	return &backend{
		places:     h.places,
		seeder:     fakeSeeder{n: 15},
		geocoder:   fakeGeocoder{},
		directions: service.NewDirectionsService(h.places, fakeGeocoder{}, routing.StraightLine{}),
		close:      func() { h.closed++ },
	}, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(h.open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// --- tests ---

func TestAddAndList(t *testing.T) {
	h := newHarness()

	img := filepath.Join(t.TempDir(), "bonsai.png")
	if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := h.run(t, "add", "Bonsai", "--address", "Ufa", "--category", "Restaurant", "--image", img)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "saved place 1 (Bonsai)") {
		t.Errorf("add output = %q", out)
	}

	if _, err := h.run(t, "add", "Kitchen"); err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err = h.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("list printed %d lines, want header + 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "Bonsai") || !strings.Contains(lines[1], "true") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "Kitchen") || !strings.Contains(lines[2], "-") {
		t.Errorf("row 2 = %q", lines[2])
	}
	if h.opened != 3 || h.closed != 3 {
		t.Errorf("opened %d closed %d, want 3 each", h.opened, h.closed)
	}
}

func TestAdd_InvalidName(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "add", "   ")
	if !errors.Is(err, storage.ErrInvalidPlace) {
		t.Fatalf("err = %v, want ErrInvalidPlace", err)
	}
}

func TestAdd_MissingImageFile(t *testing.T) {
	h := newHarness()
	if _, err := h.run(t, "add", "Bonsai", "--image", filepath.Join(t.TempDir(), "absent.png")); err == nil {
		t.Fatal("expected error")
	}
	if len(h.places.saved) != 0 {
		t.Error("nothing should be saved")
	}
}

func TestSeed(t *testing.T) {
	out, err := newHarness().run(t, "seed")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if strings.TrimSpace(out) != "saved 15 places" {
		t.Errorf("output = %q", out)
	}
}

func TestGeocode(t *testing.T) {
	out, err := newHarness().run(t, "geocode", "Ufa", "Lenina", "1")
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if !strings.HasPrefix(out, ufa.String()) {
		t.Errorf("output = %q", out)
	}

	if _, err := newHarness().run(t, "geocode", "nowhere"); !errors.Is(err, geocoding.ErrNoResult) {
		t.Errorf("err = %v, want ErrNoResult", err)
	}
}

func TestReverse(t *testing.T) {
	out, err := newHarness().run(t, "reverse", "54.7388", "55.9721")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if strings.TrimSpace(out) != "Lenina 1, Ufa" {
		t.Errorf("output = %q", out)
	}

	for _, args := range [][]string{
		{"reverse", "north", "55"},
		{"reverse", "54", "east"},
		{"reverse", "95", "55"},
	} {
		if _, err := newHarness().run(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestRoute(t *testing.T) {
	h := newHarness()
	if _, err := h.run(t, "add", "Bonsai", "--address", "Ufa, Lenina 1"); err != nil {
		t.Fatal(err)
	}

	out, err := h.run(t, "route", "1", "--lat", "54.70", "--lon", "55.90")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(out, "route 1:") || !strings.Contains(out, "Distance ") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "straight line") {
		t.Errorf("fallback marker missing: %q", out)
	}
}

func TestRoute_Errors(t *testing.T) {
	h := newHarness()
	if _, err := h.run(t, "add", "Kitchen"); err != nil {
		t.Fatal(err)
	}

	if _, err := h.run(t, "route", "1", "--lat", "54.7"); err == nil {
		t.Error("missing --lon: expected error")
	}
	if _, err := h.run(t, "route", "x", "--lat", "54.7", "--lon", "55.9"); err == nil {
		t.Error("bad id: expected error")
	}
	if _, err := h.run(t, "route", "9", "--lat", "54.7", "--lon", "55.9"); !errors.Is(err, service.ErrPlaceNotFound) {
		t.Errorf("unknown place: err = %v", err)
	}
	if _, err := h.run(t, "route", "1", "--lat", "54.7", "--lon", "55.9"); !errors.Is(err, service.ErrPlaceHasNoAddress) {
		t.Errorf("no address: err = %v", err)
	}
}

func TestOpenFailureIsReturned(t *testing.T) {
	cmd := newRootCmd(func(context.Context) (*backend, error) {
		return nil, errors.New("db down")
	})
	cmd.SetArgs([]string{"list"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v", err)
	}
}
