// Package mapview defines the map surface the coordinator drives and an
// in-memory implementation whose state is rendered by the client.
package mapview

import (
	"sync"

	"github.com/FooledKiwi/placemap/internal/geo"
)

// Annotation is a labeled marker.
type Annotation struct {
	Title      string         `json:"title"`
	Subtitle   string         `json:"subtitle,omitempty"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

// Overlay is a drawn route polyline.
type Overlay struct {
	Polyline   string `json:"polyline"`
	DistanceM  int    `json:"distance_m"`
	DurationS  int    `json:"duration_s"`
	Generation uint64 `json:"generation"`
}

// Region aliases geo.Region for callers that only import mapview.
type Region = geo.Region

// Surface is the viewport contract: region control, overlays and markers.
type Surface interface {
	SetRegion(r Region)
	Center() geo.Coordinate
	SetShowsUserLocation(show bool)
	AddOverlay(o Overlay)
	RemoveOverlays()
	Overlays() []Overlay
	ShowAnnotation(a Annotation)
	RemoveAnnotation(a Annotation)
	SelectAnnotation(a Annotation)
}

// Snapshot is the serialisable state of a Canvas.
type Snapshot struct {
	Region            Region       `json:"region"`
	ShowsUserLocation bool         `json:"shows_user_location"`
	Overlays          []Overlay    `json:"overlays"`
	Annotations       []Annotation `json:"annotations"`
	Selected          *Annotation  `json:"selected,omitempty"`
	RouteSummary      string       `json:"route_summary,omitempty"`
	Address           string       `json:"address,omitempty"`
}

// Canvas is an in-memory Surface. It is safe for concurrent reads while the
// owning event loop mutates it.
type Canvas struct {
	mu                sync.RWMutex
	region            Region
	showsUserLocation bool
	overlays          []Overlay
	annotations       []Annotation
	selected          *Annotation
	routeSummary      string
	address           string
}

// NewCanvas returns a Canvas centered on initial.
func NewCanvas(initial Region) *Canvas {
	return &Canvas{region: initial}
}

func (c *Canvas) SetRegion(r Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = r
}

// SetCenter moves the viewport keeping its extent, as a user pan does.
func (c *Canvas) SetCenter(center geo.Coordinate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region.Center = center
}

func (c *Canvas) Center() geo.Coordinate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.region.Center
}

func (c *Canvas) SetShowsUserLocation(show bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showsUserLocation = show
}

func (c *Canvas) AddOverlay(o Overlay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = append(c.overlays, o)
}

func (c *Canvas) RemoveOverlays() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays = nil
}

func (c *Canvas) Overlays() []Overlay {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Overlay, len(c.overlays))
	copy(out, c.overlays)
	return out
}

// ShowAnnotation adds a and fits the region on it.
func (c *Canvas) ShowAnnotation(a Annotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annotations = append(c.annotations, a)
	c.region.Center = a.Coordinate
}

// RemoveAnnotation removes every marker equal to a and clears the selection
// if it was one of them.
func (c *Canvas) RemoveAnnotation(a Annotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.annotations[:0]
	for _, existing := range c.annotations {
		if existing != a {
			kept = append(kept, existing)
		}
	}
	c.annotations = kept
	if c.selected != nil && *c.selected == a {
		c.selected = nil
	}
}

func (c *Canvas) SelectAnnotation(a Annotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = &a
}

// ShowRouteSummary stores the text shown next to the map.
func (c *Canvas) ShowRouteSummary(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routeSummary = text
}

// ShowAddress stores the address resolved for the map center.
func (c *Canvas) ShowAddress(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.address = address
}

// Snapshot returns a copy of the current state.
func (c *Canvas) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Region:            c.region,
		ShowsUserLocation: c.showsUserLocation,
		Overlays:          make([]Overlay, len(c.overlays)),
		Annotations:       make([]Annotation, len(c.annotations)),
		RouteSummary:      c.routeSummary,
		Address:           c.address,
	}
	copy(s.Overlays, c.overlays)
	copy(s.Annotations, c.annotations)
	if c.selected != nil {
		sel := *c.selected
		s.Selected = &sel
	}
	return s
}
