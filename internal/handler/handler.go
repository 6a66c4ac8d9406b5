package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/session"
	"github.com/FooledKiwi/placemap/internal/storage"
)

// Seeder stores the demo catalogue.
type Seeder interface {
	SeedDefaults(ctx context.Context) (int, error)
}

// PlaceRouter answers one-off route queries to a stored place.
type PlaceRouter interface {
	RouteToPlace(ctx context.Context, origin geo.Coordinate, placeID int64) (*service.PlaceRoute, error)
}

// Handler holds the domain dependencies for all HTTP handlers.
// A single Handler is shared across all route groups; individual methods are
// registered as gin handler functions.
type Handler struct {
	places     storage.PlacesRepository
	seeder     Seeder
	directions PlaceRouter
	sessions   *session.Registry
	log        zerolog.Logger
}

// New creates a Handler with the given dependencies.
func New(
	places storage.PlacesRepository,
	seeder Seeder,
	directions PlaceRouter,
	sessions *session.Registry,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		places:     places,
		seeder:     seeder,
		directions: directions,
		sessions:   sessions,
		log:        log,
	}
}

// Register mounts every API route on r.
func (h *Handler) Register(r gin.IRouter) {
	places := r.Group("/places")
	{
		places.GET("", h.ListPlaces)
		places.POST("", h.CreatePlace)
		places.POST("/seed", h.SeedPlaces)
		places.GET("/:id", h.GetPlace)
		places.GET("/:id/image", h.GetPlaceImage)
		places.GET("/:id/route", h.GetRouteToPlace)
	}

	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.PUT("/:id/device", h.ReportDevice)
		sessions.POST("/:id/access", h.CheckAccess)
		sessions.POST("/:id/place", h.ShowPlace)
		sessions.POST("/:id/center", h.CenterOnUser)
		sessions.POST("/:id/directions", h.Directions)
		sessions.PUT("/:id/viewport", h.Pan)
		sessions.POST("/:id/address", h.ResolveAddress)
		sessions.GET("/:id/map", h.GetMap)
		sessions.GET("/:id/alerts", h.DrainAlerts)
	}
}

// parseID extracts and validates a positive int64 :id path parameter.
func parseID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return v, true
}

// parseRequiredFloat extracts a required float64 query parameter.
// On failure it writes a 400 response and returns (0, false).
func parseRequiredFloat(c *gin.Context, name string) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " query parameter is required"})
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a valid number"})
		return 0, false
	}
	return v, true
}
