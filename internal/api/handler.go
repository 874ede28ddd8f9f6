package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-quake-safety/internal/broadcast"
	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/repository"
	"github.com/mr1hm/go-quake-safety/internal/safety"
	"github.com/mr1hm/go-quake-safety/internal/service"
	"github.com/mr1hm/go-quake-safety/internal/sources"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

const maxTopN = 50

type Evaluator interface {
	Evaluate(ctx context.Context, req service.Request) (*service.Result, error)
}

type Handler struct {
	evaluator   Evaluator
	repo        repository.EarthquakeRepository
	broadcaster *broadcast.Broadcaster
	metrics     *telemetry.Metrics
}

// NewHandler builds the HTTP handlers. repo, broadcaster and metrics may be
// nil, which disables the routes that need them.
func NewHandler(evaluator Evaluator, repo repository.EarthquakeRepository, broadcaster *broadcast.Broadcaster, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		evaluator:   evaluator,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/safe-places", h.getSafePlaces)
	r.GET("/api/safe-places.geojson", h.getSafePlacesGeoJSON)
	if h.repo != nil {
		r.GET("/api/earthquakes", h.getEarthquakes)
	}
	if h.broadcaster != nil {
		r.GET("/api/earthquakes/stream", h.streamEarthquakes)
	}
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	r.GET("/health", h.health)
}

func (h *Handler) getSafePlaces(c *gin.Context) {
	res, ok := h.evaluate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getSafePlacesGeoJSON(c *gin.Context) {
	res, ok := h.evaluate(c)
	if !ok {
		return
	}

	body, err := resultToGeoJSON(res)
	if err != nil {
		slog.Error("geojson encoding failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode result"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

func (h *Handler) evaluate(c *gin.Context) (*service.Result, bool) {
	req, err := parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	res, err := h.evaluator.Evaluate(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		slog.Warn("evaluation failed", "request_id", c.GetString(requestIDKey), "status", status, "error", err)
		c.JSON(status, gin.H{"error": publicMessage(status, err)})
		return nil, false
	}
	return res, true
}

func parseRequest(c *gin.Context) (service.Request, error) {
	var req service.Request

	lat, lon := c.Query("lat"), c.Query("lon")
	switch {
	case lat == "" && lon == "":
	case lat == "" || lon == "":
		return req, errors.New("lat and lon must be supplied together")
	default:
		p, err := sources.ParseLatLon(lat + "," + lon)
		if err != nil {
			return req, err
		}
		req.User = &p
	}

	if t := c.Query("top"); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil || n < 1 || n > maxTopN {
			return req, fmt.Errorf("top must be an integer between 1 and %d", maxTopN)
		}
		req.TopN = n
	}

	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return http.StatusBadRequest
	case errors.Is(err, safety.ErrInvalidMagnitude), errors.Is(err, safety.ErrNonFinite):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLocationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sources.ErrUpstream), errors.Is(err, service.ErrInvalidEpicenter):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(status int, err error) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return err.Error()
	case http.StatusServiceUnavailable:
		return "location unavailable: supply lat and lon"
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "upstream data source unavailable"
	default:
		return "internal error"
	}
}

func (h *Handler) getEarthquakes(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 earthquakes if limit param not supplied
	}

	if m := c.Query("min_magnitude"); m != "" {
		if mag, err := strconv.ParseFloat(m, 64); err == nil {
			filter.MinMagnitude = &mag
		}
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if lat, lon := c.Query("lat"), c.Query("lon"); lat != "" || lon != "" {
		p, err := sources.ParseLatLon(lat + "," + lon)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		radius := 100.0
		if r := c.Query("radius_km"); r != "" {
			if v, err := strconv.ParseFloat(r, 64); err == nil && v > 0 {
				radius = v
			}
		}
		filter.Near = &p
		filter.RadiusKm = radius
	}

	quakes, err := h.repo.ListEarthquakes(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch earthquakes",
		})
		return
	}

	body, err := earthquakesToGeoJSON(quakes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode earthquakes"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
