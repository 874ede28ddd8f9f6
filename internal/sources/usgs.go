package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
)

const usgsTimeLayout = "2006-01-02T15:04:05"

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   *usgsGeometry  `json:"geometry"`
}
type usgsProperties struct {
	Mag   *float64 `json:"mag"`
	Place *string  `json:"place"`
	Time  *int64   `json:"time"` // unix millis
	Title string   `json:"title"`
	URL   string   `json:"url"`
}
type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// USGSClient reads earthquakes from the USGS FDSN event service and its
// summary GeoJSON feeds.
type USGSClient struct {
	queryURL string
	feedURL  string
	req      *requester
	now      func() time.Time
}

func NewUSGSClient(queryURL, feedURL string, opts Options) *USGSClient {
	return &USGSClient{
		queryURL: queryURL,
		feedURL:  feedURL,
		req:      newRequester("usgs", opts),
		now:      time.Now,
	}
}

func (c *USGSClient) Name() string { return "usgs" }

// Earthquakes queries events within q.RadiusKm of q.Center over the lookback window.
func (c *USGSClient) Earthquakes(ctx context.Context, q models.QuakeQuery) ([]models.Earthquake, error) {
	end := c.now().UTC()
	start := end.Add(-q.Lookback)

	params := url.Values{}
	params.Set("format", "geojson")
	params.Set("latitude", strconv.FormatFloat(q.Center.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.Center.Longitude, 'f', -1, 64))
	params.Set("maxradiuskm", strconv.FormatFloat(q.RadiusKm, 'f', -1, 64))
	params.Set("minmagnitude", strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64))
	params.Set("starttime", start.Format(usgsTimeLayout))
	params.Set("endtime", end.Format(usgsTimeLayout))

	req, err := newGet(ctx, c.queryURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	body, err := c.req.do(req)
	if err != nil {
		return nil, err
	}
	return decodeUSGS(body)
}

// Fetch reads the configured summary feed.
func (c *USGSClient) Fetch(ctx context.Context) ([]models.Earthquake, error) {
	req, err := newGet(ctx, c.feedURL)
	if err != nil {
		return nil, err
	}
	body, err := c.req.do(req)
	if err != nil {
		return nil, err
	}
	return decodeUSGS(body)
}

// decodeUSGS drops features without valid coordinates or magnitude.
func decodeUSGS(body []byte) ([]models.Earthquake, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var data usgsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: usgs: error decoding resp.Body: %w", ErrUpstream, err)
	}

	now := time.Now()
	quakes := make([]models.Earthquake, 0, len(data.Features))
	for _, f := range data.Features {
		if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
			slog.Debug("skipping USGS feature without coordinates", "id", f.ID)
			continue
		}
		if p := geo.NewPoint(f.Geometry.Coordinates[1], f.Geometry.Coordinates[0]); p.Validate() != nil {
			slog.Debug("skipping USGS feature with invalid coordinates", "id", f.ID)
			continue
		}
		if f.Properties.Mag == nil {
			slog.Debug("skipping USGS feature without magnitude", "id", f.ID)
			continue
		}

		e := models.Earthquake{
			ID:        "usgs_" + f.ID,
			Source:    "usgs",
			Title:     f.Properties.Title,
			Magnitude: *f.Properties.Mag,
			Longitude: f.Geometry.Coordinates[0],
			Latitude:  f.Geometry.Coordinates[1],
			URL:       f.Properties.URL,
			CreatedAt: now,
		}
		if len(f.Geometry.Coordinates) > 2 {
			e.Depth = f.Geometry.Coordinates[2]
		}
		if f.Properties.Place != nil {
			e.Place = *f.Properties.Place
		}
		if f.Properties.Time != nil {
			e.Time = time.UnixMilli(*f.Properties.Time).UTC()
		}
		quakes = append(quakes, e)
	}

	return quakes, nil
}
