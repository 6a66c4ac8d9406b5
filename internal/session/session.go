// Package session keeps the live map sessions of connected clients. Each
// session owns an event loop, the client's reported device state, a map
// canvas, an alert queue and a coordinator bound to all of them.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/alert"
	"github.com/FooledKiwi/placemap/internal/coordinator"
	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/location"
	"github.com/FooledKiwi/placemap/internal/mainloop"
	"github.com/FooledKiwi/placemap/internal/mapview"
	"github.com/FooledKiwi/placemap/internal/storage"
)

// Session is one client's map screen.
type Session struct {
	ID        string
	Mode      coordinator.Mode
	CreatedAt time.Time

	loop   *mainloop.Loop
	device *location.Device
	canvas *mapview.Canvas
	alerts *alert.Queue
	coord  *coordinator.Coordinator
	log    zerolog.Logger

	stop     context.CancelFunc
	lastSeen atomic.Int64

	recenterDelay time.Duration

	// Owned by the loop.
	lastKnown *geo.Coordinate
	ready     bool
	recenter  *time.Timer
}

// Status is the session state reported to the client.
type Status struct {
	ID        string           `json:"id"`
	Mode      coordinator.Mode `json:"mode"`
	Ready     bool             `json:"ready"`
	LastKnown *geo.Coordinate  `json:"last_known,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) close() {
	_ = s.Do(context.Background(), func() {
		if s.recenter != nil {
			s.recenter.Stop()
		}
	})
	s.coord.Close()
	s.loop.Stop()
	s.stop()
}

// Do runs fn on the session's event loop and waits for it. It returns
// ctx.Err() if ctx ends first and mainloop.ErrStopped once the session is
// closed.
func (s *Session) Do(ctx context.Context, fn func()) error {
	return s.loop.Do(ctx, fn)
}

// ReportDevice replaces the device state with what the client reported.
func (s *Session) ReportDevice(r location.Report) {
	s.device.Update(r)
}

// PromptRequested reports whether the client should show the permission
// prompt.
func (s *Session) PromptRequested() bool {
	return s.device.PromptRequested()
}

// CheckAccess runs the location access check. ready reports whether the
// check completed with location services enabled.
func (s *Session) CheckAccess(ctx context.Context) (ready bool, err error) {
	err = s.Do(ctx, func() {
		s.coord.CheckLocationAccess(s.canvas, s.Mode, func() {
			ready = true
			s.ready = true
		})
	})
	return ready, err
}

// ShowPlace puts place on the map and makes it the route target.
func (s *Session) ShowPlace(ctx context.Context, place storage.Place) error {
	return s.Do(ctx, func() { s.coord.PlaceOnMap(place, s.canvas) })
}

// CenterOnUser moves the map to the user's location.
func (s *Session) CenterOnUser(ctx context.Context) error {
	return s.Do(ctx, func() { s.coord.CenterOnUser(s.canvas) })
}

// Directions computes routes to the current place. The route origin becomes
// the last known location used for drift tracking.
func (s *Session) Directions(ctx context.Context) error {
	return s.Do(ctx, func() {
		s.coord.ComputeRoute(s.canvas, func(prev geo.Coordinate) {
			s.lastKnown = &prev
		})
	})
}

// Pan moves the map center as the user drags it. In address mode the new
// center is reverse-geocoded. Otherwise a pan far from the last known location
// records the new center and recenters on the user after a pause.
func (s *Session) Pan(ctx context.Context, center geo.Coordinate) error {
	return s.Do(ctx, func() {
		s.canvas.SetCenter(center)

		if s.Mode == coordinator.ModeGetAddress {
			s.coord.AddressAtCenter(s.canvas, s.canvas.ShowAddress)
			return
		}

		s.coord.TrackDrift(s.canvas, s.lastKnown, func(moved geo.Coordinate) {
			s.lastKnown = &moved
			if s.recenter != nil {
				s.recenter.Stop()
			}
			s.recenter = s.loop.After(s.recenterDelay, func() {
				s.coord.CenterOnUser(s.canvas)
			})
		})
	})
}

// ResolveAddress reverse-geocodes the current map center into the canvas.
func (s *Session) ResolveAddress(ctx context.Context) error {
	return s.Do(ctx, func() {
		s.coord.AddressAtCenter(s.canvas, s.canvas.ShowAddress)
	})
}

// Status returns the session state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st := Status{ID: s.ID, Mode: s.Mode, CreatedAt: s.CreatedAt}
	err := s.Do(ctx, func() {
		st.Ready = s.ready
		if s.lastKnown != nil {
			lk := *s.lastKnown
			st.LastKnown = &lk
		}
	})
	return st, err
}

// Snapshot returns the current map state.
func (s *Session) Snapshot() mapview.Snapshot {
	return s.canvas.Snapshot()
}

// DrainAlerts returns and clears the pending alerts.
func (s *Session) DrainAlerts() []alert.Alert {
	return s.alerts.Drain()
}
