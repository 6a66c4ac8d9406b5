package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/storage"
)

const maxUploadSize = 5 << 20 // 5 MB

// allowedImageTypes are the accepted picture formats.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

type placeJSON struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address"`
	Category  *string   `json:"category"`
	HasImage  bool      `json:"has_image"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toPlaceJSON(p storage.Place) placeJSON {
	out := placeJSON{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		Category:  p.Category,
		HasImage:  p.HasImage,
		CreatedAt: p.CreatedAt,
	}
	if p.HasImage {
		out.ImageURL = fmt.Sprintf("/api/v1/places/%d/image", p.ID)
	}
	return out
}

// ListPlaces handles GET /api/v1/places
//
// Response 200:
//
//	[{"id":1,"name":"Bonsai","address":"Ufa","category":"Restaurant","has_image":true,...}]
func (h *Handler) ListPlaces(c *gin.Context) {
	places, err := h.places.List(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("listing places")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list places"})
		return
	}

	out := make([]placeJSON, len(places))
	for i, p := range places {
		out[i] = toPlaceJSON(p)
	}
	c.JSON(http.StatusOK, out)
}

// GetPlace handles GET /api/v1/places/:id
func (h *Handler) GetPlace(c *gin.Context) {
	place, ok := h.lookupPlace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toPlaceJSON(*place))
}

// GetPlaceImage handles GET /api/v1/places/:id/image
//
// Response 404: the place does not exist or has no picture.
func (h *Handler) GetPlaceImage(c *gin.Context) {
	place, ok := h.lookupPlace(c)
	if !ok {
		return
	}
	if len(place.Image) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "place has no image"})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(place.Image), place.Image)
}

// CreatePlace handles POST /api/v1/places
//
// Expects a multipart form with "name" (required), "address", "category" and
// an optional "file" picture (JPEG, PNG or WebP, at most 5 MB).
//
// Response 201: the stored place.
// Response 400: invalid fields or picture.
// Response 413: picture too large.
// Response 500: storage error.
func (h *Handler) CreatePlace(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	if err := c.Request.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file must not exceed 5 MB"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a multipart form"})
		return
	}

	place := &storage.Place{
		Name:     c.PostForm("name"),
		Address:  optionalForm(c, "address"),
		Category: optionalForm(c, "category"),
	}

	image, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	place.Image = image

	if err := h.places.Save(c.Request.Context(), place); err != nil {
		if errors.Is(err, storage.ErrInvalidPlace) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error().Err(err).Str("name", place.Name).Msg("saving place")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save place"})
		return
	}

	c.JSON(http.StatusCreated, toPlaceJSON(*place))
}

// SeedPlaces handles POST /api/v1/places/seed
//
// Response 200: {"saved": 15}
func (h *Handler) SeedPlaces(c *gin.Context) {
	n, err := h.seeder.SeedDefaults(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Int("saved", n).Msg("seeding places")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to seed places", "saved": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": n})
}

// GetRouteToPlace handles GET /api/v1/places/:id/route
//
// Query params:
//   - lat (required) float64, origin latitude
//   - lon (required) float64, origin longitude
//
// Response 200:
//
//	{"place_id":1,"destination":{"lat":54.72,"lon":55.94},"routes":[...],"summary":"Distance 3.2 km, travel time 5 min","is_fallback":false}
//
// Response 400: invalid id or coordinates.
// Response 404: place not found.
// Response 422: the place has no address or it does not resolve.
// Response 502: routing provider error.
func (h *Handler) GetRouteToPlace(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lat, ok := parseRequiredFloat(c, "lat")
	if !ok {
		return
	}
	lon, ok := parseRequiredFloat(c, "lon")
	if !ok {
		return
	}
	origin := geo.Coordinate{Lat: lat, Lon: lon}
	if !origin.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat/lon out of range"})
		return
	}

	result, err := h.directions.RouteToPlace(c.Request.Context(), origin, id)
	switch {
	case errors.Is(err, service.ErrPlaceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
		return
	case errors.Is(err, service.ErrPlaceHasNoAddress), errors.Is(err, geocoding.ErrNoResult):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "place address cannot be located"})
		return
	case err != nil:
		h.log.Error().Err(err).Int64("place_id", id).Msg("routing to place")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to compute route"})
		return
	}

	routes := result.Routes
	if routes == nil {
		routes = []routing.Route{}
	}
	c.JSON(http.StatusOK, gin.H{
		"place_id":    result.Place.ID,
		"destination": result.Destination,
		"routes":      routes,
		"summary":     result.Summary,
		"is_fallback": result.IsFallback,
	})
}

func (h *Handler) lookupPlace(c *gin.Context) (*storage.Place, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	place, err := h.places.Get(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("place_id", id).Msg("loading place")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query place"})
		return nil, false
	}
	if place == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "place not found"})
		return nil, false
	}
	return place, true
}

func optionalForm(c *gin.Context, key string) *string {
	v, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &v
}

// readImage returns the optional "file" picture. A missing file is not an
// error.
func readImage(c *gin.Context) ([]byte, error) {
	file, _, err := c.Request.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.New("invalid 'file' field")
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read 'file' field")
	}
	if len(data) == 0 {
		return nil, nil
	}

	detected := http.DetectContentType(data)
	if !allowedImageTypes[detected] {
		return nil, fmt.Errorf("unsupported file type %q; allowed: JPEG, PNG, WebP", detected)
	}
	return data, nil
}
