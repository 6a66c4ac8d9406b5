// Package location models the device location service: whether location
// services are enabled, the app's authorization state and the current fix.
package location

import (
	"strings"
	"sync"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// AuthorizationState is the app's location permission as reported by the
// platform. Transitions are driven externally.
type AuthorizationState int

const (
	// Unknown covers states this build does not recognise.
	Unknown AuthorizationState = iota
	NotDetermined
	AuthorizedWhenInUse
	AuthorizedAlways
	Denied
	Restricted
)

var stateNames = map[AuthorizationState]string{
	Unknown:             "unknown",
	NotDetermined:       "notDetermined",
	AuthorizedWhenInUse: "authorizedWhenInUse",
	AuthorizedAlways:    "authorizedAlways",
	Denied:              "denied",
	Restricted:          "restricted",
}

func (s AuthorizationState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[Unknown]
}

// Authorized reports whether s grants access to the device location.
func (s AuthorizationState) Authorized() bool {
	return s == AuthorizedWhenInUse || s == AuthorizedAlways
}

// ParseAuthorizationState maps a platform state name onto AuthorizationState.
// Unrecognised names yield Unknown.
func ParseAuthorizationState(name string) AuthorizationState {
	for state, n := range stateNames {
		if strings.EqualFold(n, name) {
			return state
		}
	}
	return Unknown
}

// Service is the narrow contract the coordinator needs from the platform
// location service.
type Service interface {
	ServicesEnabled() bool
	Authorization() AuthorizationState
	// RequestWhenInUseAuthorization asks the platform to prompt the user.
	RequestWhenInUseAuthorization()
	// StartUpdatingLocation asks the platform to keep the fix fresh.
	StartUpdatingLocation()
	// Location returns the current fix, if any.
	Location() (geo.Coordinate, bool)
}

// Device is a Service whose state is reported by the client device. It
// records outgoing requests (permission prompt, location updates) so the
// client can act on them.
type Device struct {
	mu              sync.RWMutex
	servicesEnabled bool
	authorization   AuthorizationState
	fix             *geo.Coordinate
	promptRequested bool
	updating        bool
}

// NewDevice returns a Device with services enabled and authorization not yet
// determined.
func NewDevice() *Device {
	return &Device{servicesEnabled: true, authorization: NotDetermined}
}

// Report is a snapshot of device state sent by the client.
type Report struct {
	ServicesEnabled bool
	Authorization   AuthorizationState
	Fix             *geo.Coordinate
}

// Update replaces the device state with r.
func (d *Device) Update(r Report) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.servicesEnabled = r.ServicesEnabled
	d.authorization = r.Authorization
	if r.Authorization != NotDetermined {
		d.promptRequested = false
	}
	if r.Fix != nil {
		fix := *r.Fix
		d.fix = &fix
	} else {
		d.fix = nil
	}
}

func (d *Device) ServicesEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.servicesEnabled
}

func (d *Device) Authorization() AuthorizationState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.authorization
}

func (d *Device) RequestWhenInUseAuthorization() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.promptRequested = true
}

func (d *Device) StartUpdatingLocation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updating = true
}

// Location returns the fix only while the app is authorized to read it.
func (d *Device) Location() (geo.Coordinate, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fix == nil || !d.authorization.Authorized() {
		return geo.Coordinate{}, false
	}
	return *d.fix, true
}

// PromptRequested reports whether a permission prompt is pending.
func (d *Device) PromptRequested() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.promptRequested
}

// Updating reports whether continuous location updates were requested.
func (d *Device) Updating() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updating
}
