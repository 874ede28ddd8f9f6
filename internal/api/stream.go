package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-quake-safety/internal/models"
)

const streamHeartbeat = 30 * time.Second

type quakeEvent struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Place     string    `json:"place"`
	Magnitude float64   `json:"magnitude"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	DepthKm   float64   `json:"depth_km"`
	Time      time.Time `json:"time"`
	URL       string    `json:"url,omitempty"`
}

func toQuakeEvent(e *models.Earthquake) quakeEvent {
	return quakeEvent{
		ID:        e.ID,
		Source:    e.Source,
		Title:     e.Title,
		Place:     e.Place,
		Magnitude: e.Magnitude,
		Lat:       e.Latitude,
		Lon:       e.Longitude,
		DepthKm:   e.Depth,
		Time:      e.Time,
		URL:       e.URL,
	}
}

// streamEarthquakes pushes newly ingested earthquakes as server-sent events
// until the client disconnects or the broadcaster closes.
func (h *Handler) streamEarthquakes(c *gin.Context) {
	var minMag float64
	if m := c.Query("min_magnitude"); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_magnitude must be a non-negative number"})
			return
		}
		minMag = v
	}

	id, events := h.broadcaster.Subscribe(minMag)
	defer h.broadcaster.Unsubscribe(id)

	slog.Info("stream client connected", "subscriber_id", id, "min_magnitude", minMag)
	defer slog.Info("stream client disconnected", "subscriber_id", id)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("earthquake", toQuakeEvent(e))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
