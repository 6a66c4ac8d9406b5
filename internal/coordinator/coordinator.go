// Package coordinator drives a map session: it checks location access,
// geocodes the selected place, computes driving routes to it and keeps the map
// surface showing only the latest route generation.
//
// Every exported method must be called on the session's event loop. Geocoding
// and routing run in the background and post their results back to the loop,
// where results belonging to a superseded request are dropped.
package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/alert"
	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/location"
	"github.com/FooledKiwi/placemap/internal/mapview"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/storage"
)

const (
	// regionMeters is the side of the region shown around the user.
	regionMeters = 1000.0

	// driftThresholdMeters is how far the map center must move from the last
	// known location before a route is recomputed.
	driftThresholdMeters = 50.0

	// servicesAlertDelay postpones the "services disabled" alert until the
	// screen has finished appearing.
	servicesAlertDelay = time.Second

	alertTitle = "Error"
)

// Mode is the reason the map screen was opened.
type Mode string

const (
	// ModeShowPlace shows a stored place and routes to it.
	ModeShowPlace Mode = "showPlace"
	// ModeGetAddress lets the user pick an address by panning the map.
	ModeGetAddress Mode = "getAddress"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeShowPlace || m == ModeGetAddress
}

var (
	ErrServicesDisabled           = errors.New("coordinator: location services disabled")
	ErrPermissionDenied           = errors.New("coordinator: location permission denied")
	ErrPermissionRestricted       = errors.New("coordinator: location permission restricted")
	ErrAddressNotResolved         = errors.New("coordinator: address not resolved")
	ErrCurrentLocationUnavailable = errors.New("coordinator: current location unavailable")
	ErrDestinationNotSet          = errors.New("coordinator: destination not set")
	ErrNoRoutes                   = errors.New("coordinator: no routes found")
)

// alertMessages holds the user-facing text for errors that raise an alert.
var alertMessages = map[error]string{
	ErrServicesDisabled:           "Location services are disabled on the device.",
	ErrPermissionDenied:           "The user denied the use of location services for the app or they are disabled globally in Settings.",
	ErrPermissionRestricted:       "The app is not authorized to use location services.",
	ErrCurrentLocationUnavailable: "Current location is not found",
	ErrDestinationNotSet:          "Destination not found",
	ErrNoRoutes:                   "Directions are not available",
}

// Scheduler runs tasks on the session's event loop.
type Scheduler interface {
	Post(fn func()) bool
	After(d time.Duration, fn func()) *time.Timer
}

// Presenter receives display updates. The coordinator never controls its
// lifetime.
type Presenter interface {
	ShowRouteSummary(text string)
}

// Deps are the collaborators of a Coordinator. Presenter may be nil.
type Deps struct {
	Scheduler Scheduler
	Location  location.Service
	Geocoder  geocoding.Geocoder
	Router    routing.Router
	Alerts    alert.Alerter
	Presenter Presenter
	Log       zerolog.Logger
}

// Coordinator bridges a map session with the location, geocoding and routing
// services.
type Coordinator struct {
	sched     Scheduler
	location  location.Service
	geocoder  geocoding.Geocoder
	router    routing.Router
	alerts    alert.Alerter
	presenter Presenter
	log       zerolog.Logger

	ctx   context.Context
	close context.CancelFunc

	alertDelay time.Duration

	// placeCoordinate is the resolved route target.
	placeCoordinate *geo.Coordinate
	// placeMarker is the marker shown for it.
	placeMarker *mapview.Annotation

	geocodeGen    uint64
	geocodeCancel context.CancelFunc

	addressGen    uint64
	addressCancel context.CancelFunc

	routeGen uint64
	inflight []context.CancelFunc

	background sync.WaitGroup
}

// New creates a Coordinator. Close releases its background work.
func New(d Deps) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		sched:      d.Scheduler,
		location:   d.Location,
		geocoder:   d.Geocoder,
		router:     d.Router,
		alerts:     d.Alerts,
		presenter:  d.Presenter,
		log:        d.Log,
		ctx:        ctx,
		close:      cancel,
		alertDelay: servicesAlertDelay,
	}
}

// Close cancels every in-flight geocoding and routing request.
func (c *Coordinator) Close() {
	c.close()
}

// PlaceCoordinate returns the resolved route target, if any.
func (c *Coordinator) PlaceCoordinate() (geo.Coordinate, bool) {
	if c.placeCoordinate == nil {
		return geo.Coordinate{}, false
	}
	return *c.placeCoordinate, true
}

// PlaceOnMap geocodes the place's address and, on success, makes it the route
// target and shows a selected marker for it. Failures are logged only. A new
// call supersedes any geocode still in flight.
func (c *Coordinator) PlaceOnMap(place storage.Place, surface mapview.Surface) {
	if c.geocodeCancel != nil {
		c.geocodeCancel()
		c.geocodeCancel = nil
	}
	c.geocodeGen++
	gen := c.geocodeGen

	if place.Address == nil || strings.TrimSpace(*place.Address) == "" {
		c.log.Debug().Int64("place_id", place.ID).Msg("place has no address")
		return
	}
	address := *place.Address

	ctx, cancel := context.WithCancel(c.ctx)
	c.geocodeCancel = cancel

	c.spawn(func() {
		res, err := c.geocoder.Geocode(ctx, address)
		c.sched.Post(func() {
			defer cancel()
			if gen != c.geocodeGen || ctx.Err() != nil {
				c.log.Debug().Str("address", address).Msg("dropping superseded geocode result")
				return
			}
			c.geocodeCancel = nil

			if err != nil {
				if errors.Is(err, geocoding.ErrNoResult) {
					err = errors.Join(ErrAddressNotResolved, err)
				}
				c.log.Error().Err(err).Str("address", address).Msg("geocoding failed")
				return
			}

			coord := res.Coordinate
			c.placeCoordinate = &coord

			annotation := mapview.Annotation{
				Title:      place.Name,
				Coordinate: coord,
			}
			if place.Category != nil {
				annotation.Subtitle = *place.Category
			}
			if c.placeMarker != nil {
				surface.RemoveAnnotation(*c.placeMarker)
			}
			surface.ShowAnnotation(annotation)
			surface.SelectAnnotation(annotation)
			c.placeMarker = &annotation
		})
	})
}

// CheckLocationAccess verifies location services and the app's authorization.
// With services disabled it raises an alert after a short delay and never
// calls onReady. Otherwise it reacts to the authorization state and then calls
// onReady, whether or not access has been granted yet.
func (c *Coordinator) CheckLocationAccess(surface mapview.Surface, mode Mode, onReady func()) {
	if !c.location.ServicesEnabled() {
		c.sched.After(c.alertDelay, func() { c.raise(ErrServicesDisabled) })
		return
	}

	c.checkAuthorization(surface, mode)
	if onReady != nil {
		onReady()
	}
}

func (c *Coordinator) checkAuthorization(surface mapview.Surface, mode Mode) {
	state := c.location.Authorization()
	switch state {
	case location.AuthorizedWhenInUse:
		surface.SetShowsUserLocation(true)
		if mode == ModeGetAddress {
			c.CenterOnUser(surface)
		}
	case location.AuthorizedAlways:
		surface.SetShowsUserLocation(true)
	case location.Denied:
		surface.SetShowsUserLocation(false)
		c.raise(ErrPermissionDenied)
	case location.Restricted:
		surface.SetShowsUserLocation(false)
		c.raise(ErrPermissionRestricted)
	case location.NotDetermined:
		c.location.RequestWhenInUseAuthorization()
	default:
		c.log.Debug().Stringer("state", state).Msg("ignoring unrecognised authorization state")
	}
}

// CenterOnUser shows a fixed-size region around the current fix. Without a
// fix it does nothing.
func (c *Coordinator) CenterOnUser(surface mapview.Surface) {
	fix, ok := c.location.Location()
	if !ok {
		return
	}
	surface.SetRegion(geo.RegionAround(fix, regionMeters, regionMeters))
}

// ComputeRoute requests driving directions, with alternates, from the current
// fix to the resolved place. onPreviousLocation receives the fix the route
// starts from. Prior overlays and requests are discarded first.
func (c *Coordinator) ComputeRoute(surface mapview.Surface, onPreviousLocation func(geo.Coordinate)) {
	fix, ok := c.location.Location()
	if !ok {
		c.raise(ErrCurrentLocationUnavailable)
		return
	}

	c.location.StartUpdatingLocation()
	if onPreviousLocation != nil {
		onPreviousLocation(fix)
	}

	if c.placeCoordinate == nil {
		c.raise(ErrDestinationNotSet)
		return
	}

	req := routing.Request{
		Origin:      fix,
		Destination: *c.placeCoordinate,
		Mode:        routing.Driving,
		Alternates:  true,
	}

	ctx, cancel := context.WithCancel(c.ctx)
	gen := c.ResetRoutes(cancel, surface)

	c.spawn(func() {
		resp, err := c.router.Directions(ctx, req)
		c.sched.Post(func() {
			defer cancel()
			if gen != c.routeGen || ctx.Err() != nil {
				c.log.Debug().Uint64("generation", gen).Msg("dropping superseded route result")
				return
			}
			c.applyRoutes(surface, req, gen, resp, err)
		})
	})
}

func (c *Coordinator) applyRoutes(surface mapview.Surface, req routing.Request, gen uint64, resp *routing.Response, err error) {
	if err != nil {
		c.log.Error().Err(err).Stringer("origin", req.Origin).Stringer("destination", req.Destination).Msg("directions failed")
		return
	}
	if resp == nil || len(resp.Routes) == 0 {
		c.raise(ErrNoRoutes)
		return
	}

	if fastest, ok := routing.Fastest(resp.Routes); ok && c.presenter != nil {
		c.presenter.ShowRouteSummary(routing.Summary(fastest))
	}

	for _, r := range resp.Routes {
		surface.AddOverlay(mapview.Overlay{
			Polyline:   r.Polyline,
			DistanceM:  r.DistanceM,
			DurationS:  r.DurationS,
			Generation: gen,
		})
		surface.SetRegion(c.routeRegion(r, req))
	}

	c.log.Info().
		Uint64("generation", gen).
		Int("routes", len(resp.Routes)).
		Bool("fallback", resp.IsFallback).
		Msg("routes drawn")
}

// routeRegion is the bounding region of r, or of its endpoints when the
// polyline is missing or malformed.
func (c *Coordinator) routeRegion(r routing.Route, req routing.Request) geo.Region {
	path, err := geo.DecodePolyline(r.Polyline)
	if err != nil {
		c.log.Warn().Err(err).Msg("route polyline is malformed")
	}
	if len(path) == 0 {
		path = []geo.Coordinate{req.Origin, req.Destination}
	}
	b, _ := geo.BoundOf(path)
	return geo.RegionFromBound(b)
}

// ResetRoutes removes every overlay, cancels every tracked route request and
// starts tracking next. It returns the generation that next belongs to.
func (c *Coordinator) ResetRoutes(next context.CancelFunc, surface mapview.Surface) uint64 {
	surface.RemoveOverlays()
	for _, cancel := range c.inflight {
		cancel()
	}
	c.inflight = c.inflight[:0]
	if next != nil {
		c.inflight = append(c.inflight, next)
	}
	c.routeGen++
	return c.routeGen
}

// TrackDrift calls onSignificantMove with the map center once it is more than
// 50 meters from lastKnown. A nil lastKnown disables tracking.
func (c *Coordinator) TrackDrift(surface mapview.Surface, lastKnown *geo.Coordinate, onSignificantMove func(geo.Coordinate)) {
	if lastKnown == nil {
		return
	}
	center := surface.Center()
	if !exceedsDrift(geo.Distance(center, *lastKnown)) {
		return
	}
	if onSignificantMove != nil {
		onSignificantMove(center)
	}
}

func exceedsDrift(meters float64) bool {
	return meters > driftThresholdMeters
}

// AddressAtCenter reverse-geocodes the map center and passes the address to
// onAddress. Only the latest call reports; failures are logged.
func (c *Coordinator) AddressAtCenter(surface mapview.Surface, onAddress func(string)) {
	if c.addressCancel != nil {
		c.addressCancel()
	}
	c.addressGen++
	gen := c.addressGen
	ctx, cancel := context.WithCancel(c.ctx)
	c.addressCancel = cancel

	center := surface.Center()
	c.spawn(func() {
		res, err := c.geocoder.Reverse(ctx, center)
		c.sched.Post(func() {
			defer cancel()
			if gen != c.addressGen || ctx.Err() != nil {
				return
			}
			c.addressCancel = nil
			if err != nil {
				c.log.Error().Err(err).Stringer("center", center).Msg("reverse geocoding failed")
				return
			}
			if onAddress != nil {
				onAddress(res.DisplayName)
			}
		})
	})
}

func (c *Coordinator) raise(err error) {
	c.log.Warn().Err(err).Msg("alerting user")
	if msg, ok := alertMessages[err]; ok && c.alerts != nil {
		c.alerts.Show(alertTitle, msg)
	}
}

// spawn runs fn in the background and tracks it for waitBackground.
func (c *Coordinator) spawn(fn func()) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		fn()
	}()
}

// waitBackground blocks until every spawned task has posted its result.
func (c *Coordinator) waitBackground() {
	c.background.Wait()
}
