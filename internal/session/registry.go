package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/alert"
	"github.com/FooledKiwi/placemap/internal/coordinator"
	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/location"
	"github.com/FooledKiwi/placemap/internal/mainloop"
	"github.com/FooledKiwi/placemap/internal/mapview"
	"github.com/FooledKiwi/placemap/internal/routing"
)

// ErrInvalidMode is returned by Create for an unknown screen mode.
var ErrInvalidMode = errors.New("session: invalid mode")

const defaultRecenterDelay = 3 * time.Second

// Config tunes a Registry.
type Config struct {
	// TTL is how long a session may stay idle before it is closed.
	TTL time.Duration
	// InitialRegion is the viewport of a new session.
	InitialRegion geo.Region
	// RecenterDelay is the pause before the map returns to the user after a
	// large pan.
	RecenterDelay time.Duration
}

// Registry owns every live session.
type Registry struct {
	geocoder geocoding.Geocoder
	router   routing.Router
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry whose sessions geocode with geocoder
// and route with router.
func NewRegistry(geocoder geocoding.Geocoder, router routing.Router, cfg Config, log zerolog.Logger) *Registry {
	if cfg.RecenterDelay <= 0 {
		cfg.RecenterDelay = defaultRecenterDelay
	}
	return &Registry{
		geocoder: geocoder,
		router:   router,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session in mode.
func (r *Registry) Create(mode coordinator.Mode) (*Session, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}

	id := uuid.NewString()
	log := r.log.With().Str("session", id).Logger()

	loop := mainloop.New()
	ctx, stop := context.WithCancel(context.Background())
	go loop.Run(ctx)

	device := location.NewDevice()
	canvas := mapview.NewCanvas(r.cfg.InitialRegion)
	alerts := alert.NewQueue(log)

	s := &Session{
		ID:        id,
		Mode:      mode,
		CreatedAt: r.now(),
		loop:      loop,
		device:    device,
		canvas:    canvas,
		alerts:    alerts,
		coord: coordinator.New(coordinator.Deps{
			Scheduler: loop,
			Location:  device,
			Geocoder:  r.geocoder,
			Router:    r.router,
			Alerts:    alerts,
			Presenter: canvas,
			Log:       log,
		}),
		log:           log,
		stop:          stop,
		recenterDelay: r.cfg.RecenterDelay,
	}
	s.touch(s.CreatedAt)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	log.Info().Str("mode", string(mode)).Msg("session created")
	return s, nil
}

// Get returns the session with id and marks it as active.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Delete closes and forgets the session with id.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.close()
		s.log.Info().Msg("session closed")
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes every session idle for longer than the TTL and returns how
// many were closed.
func (r *Registry) Sweep() int {
	if r.cfg.TTL <= 0 {
		return 0
	}
	now := r.now()

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.idleSince(now) > r.cfg.TTL {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.close()
		s.log.Info().Msg("session expired")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.TTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Debug().Int("expired", n).Msg("idle sessions swept")
			}
		}
	}
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.close()
	}
}
