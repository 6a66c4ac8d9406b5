package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/FooledKiwi/placemap/internal/coordinator"
	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/location"
	"github.com/FooledKiwi/placemap/internal/mainloop"
	"github.com/FooledKiwi/placemap/internal/session"
)

type createSessionRequest struct {
	Mode string `json:"mode" binding:"required,oneof=showPlace getAddress"`
}

// CreateSession handles POST /api/v1/sessions
//
// Request: {"mode":"showPlace"}
// Response 201: {"id":"...","mode":"showPlace"}
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Create(coordinator.Mode(req.Mode))
	if err != nil {
		if errors.Is(err, session.ErrInvalidMode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": s.ID, "mode": s.Mode})
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

type deviceRequest struct {
	ServicesEnabled *bool    `json:"services_enabled" binding:"required"`
	Authorization   string   `json:"authorization" binding:"required"`
	Lat             *float64 `json:"lat" binding:"omitempty,latitude"`
	Lon             *float64 `json:"lon" binding:"omitempty,longitude"`
}

// ReportDevice handles PUT /api/v1/sessions/:id/device
//
// Request:
//
//	{"services_enabled":true,"authorization":"authorizedWhenInUse","lat":54.73,"lon":55.97}
//
// lat and lon are sent together or not at all; without them the device has
// no fix. Unrecognised authorization names are stored as "unknown".
//
// Response 200: {"authorization":"authorizedWhenInUse","prompt_requested":false}
func (h *Handler) ReportDevice(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.Lat == nil) != (req.Lon == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon must be sent together"})
		return
	}

	report := location.Report{
		ServicesEnabled: *req.ServicesEnabled,
		Authorization:   location.ParseAuthorizationState(req.Authorization),
	}
	if req.Lat != nil {
		report.Fix = &geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}
	}
	s.ReportDevice(report)

	c.JSON(http.StatusOK, gin.H{
		"authorization":    report.Authorization.String(),
		"prompt_requested": s.PromptRequested(),
	})
}

// CheckAccess handles POST /api/v1/sessions/:id/access
//
// Response 200: {"ready":true,"prompt_requested":true}
func (h *Handler) CheckAccess(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ready, err := s.CheckAccess(c.Request.Context())
	if err != nil {
		h.loopError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ready":            ready,
		"prompt_requested": s.PromptRequested(),
	})
}

type showPlaceRequest struct {
	PlaceID int64 `json:"place_id" binding:"required,gt=0"`
}

// ShowPlace handles POST /api/v1/sessions/:id/place
//
// Geocoding runs in the background; poll the map for the marker.
//
// Response 202: {"status":"geocoding"}
// Response 404: unknown session or place.
func (h *Handler) ShowPlace(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req showPlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	place, err := h.places.Get(c.Request.Context(), req.PlaceID)
	if err != nil {
		h.log.Error().Err(err).Int64("place_id", req.PlaceID).Msg("loading place")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query place"})
		return
	}
	if place == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
		return
	}

	if err := s.ShowPlace(c.Request.Context(), *place); err != nil {
		h.loopError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "geocoding"})
}

// CenterOnUser handles POST /api/v1/sessions/:id/center
//
// Response 200: the map snapshot.
func (h *Handler) CenterOnUser(c *gin.Context) {
	h.run(c, http.StatusOK, nil, func(ctx context.Context, s *session.Session) error {
		return s.CenterOnUser(ctx)
	})
}

// Directions handles POST /api/v1/sessions/:id/directions
//
// Response 202: {"status":"routing"}
func (h *Handler) Directions(c *gin.Context) {
	h.run(c, http.StatusAccepted, gin.H{"status": "routing"}, func(ctx context.Context, s *session.Session) error {
		return s.Directions(ctx)
	})
}

type viewportRequest struct {
	Lat *float64 `json:"lat" binding:"required,latitude"`
	Lon *float64 `json:"lon" binding:"required,longitude"`
}

// Pan handles PUT /api/v1/sessions/:id/viewport
//
// Request: {"lat":54.73,"lon":55.97}
// Response 202: {"status":"tracking"}
func (h *Handler) Pan(c *gin.Context) {
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	center := geo.Coordinate{Lat: *req.Lat, Lon: *req.Lon}

	h.run(c, http.StatusAccepted, gin.H{"status": "tracking"}, func(ctx context.Context, s *session.Session) error {
		return s.Pan(ctx, center)
	})
}

// ResolveAddress handles POST /api/v1/sessions/:id/address
//
// Response 202: {"status":"resolving"}
func (h *Handler) ResolveAddress(c *gin.Context) {
	h.run(c, http.StatusAccepted, gin.H{"status": "resolving"}, func(ctx context.Context, s *session.Session) error {
		return s.ResolveAddress(ctx)
	})
}

// GetMap handles GET /api/v1/sessions/:id/map
//
// Response 200: {"session":{...},"map":{"region":...,"overlays":[...],...}}
func (h *Handler) GetMap(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	status, err := s.Status(c.Request.Context())
	if err != nil {
		h.loopError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": status, "map": s.Snapshot()})
}

// DrainAlerts handles GET /api/v1/sessions/:id/alerts
//
// Each alert is returned once.
func (h *Handler) DrainAlerts(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.DrainAlerts())
}

// run executes op on the session and answers with status. A nil body
// answers with the map snapshot.
func (h *Handler) run(c *gin.Context, status int, body any, op func(context.Context, *session.Session) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := op(c.Request.Context(), s); err != nil {
		h.loopError(c, err)
		return
	}
	if body == nil {
		body = s.Snapshot()
	}
	c.JSON(status, body)
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

func (h *Handler) loopError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mainloop.ErrStopped):
		c.JSON(http.StatusGone, gin.H{"error": "session closed"})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request timed out"})
	default:
		h.log.Error().Err(err).Msg("session operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session operation failed"})
	}
}
