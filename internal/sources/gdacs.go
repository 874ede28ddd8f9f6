package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
)

type gdacsRSS struct {
	Channel gdacsChannel `xml:"channel"`
}
type gdacsChannel struct {
	Items []gdacsItem `xml:"item"`
}
type gdacsItem struct {
	Title       string         `xml:"title"`
	Description string         `xml:"description"`
	Link        string         `xml:"link"`
	PubDate     string         `xml:"pubDate"`
	Point       *gdacsPoint    `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# Point"`
	EventType   string         `xml:"http://www.gdacs.org eventtype"`
	EventID     string         `xml:"http://www.gdacs.org eventid"`
	Country     string         `xml:"http://www.gdacs.org country"`
	Severity    *gdacsSeverity `xml:"http://www.gdacs.org severity"`
}

type gdacsPoint struct {
	Lat *float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# lat"`
	Lon *float64 `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# long"`
}

// gdacsSeverity carries the magnitude in its value attribute for earthquakes.
type gdacsSeverity struct {
	Unit  string   `xml:"unit,attr"`
	Value *float64 `xml:"value,attr"`
}

// location returns the item's point, or false when it is missing or out of range.
func (item gdacsItem) location() (geo.Point, bool) {
	if item.Point == nil || item.Point.Lat == nil || item.Point.Lon == nil {
		return geo.Point{}, false
	}
	p := geo.NewPoint(*item.Point.Lat, *item.Point.Lon)
	return p, p.Validate() == nil
}

func (item gdacsItem) magnitude() (float64, bool) {
	if item.Severity == nil || item.Severity.Value == nil {
		return 0, false
	}
	m := *item.Severity.Value
	return m, m > 0 && !math.IsInf(m, 0)
}

// GDACSClient reads earthquake events from the GDACS RSS feed. Other hazard
// types in the feed are ignored.
type GDACSClient struct {
	url string
	req *requester
}

func NewGDACSClient(feedURL string, opts Options) *GDACSClient {
	return &GDACSClient{
		url: feedURL,
		req: newRequester("gdacs", opts),
	}
}

func (c *GDACSClient) Name() string { return "gdacs" }

func (c *GDACSClient) Fetch(ctx context.Context) ([]models.Earthquake, error) {
	req, err := newGet(ctx, c.url)
	if err != nil {
		return nil, err
	}
	body, err := c.req.do(req)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var data gdacsRSS
	if err := xml.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: gdacs: error decoding resp.Body: %w", ErrUpstream, err)
	}

	now := time.Now()
	quakes := make([]models.Earthquake, 0, len(data.Channel.Items))
	for _, item := range data.Channel.Items {
		if !strings.EqualFold(item.EventType, "EQ") {
			continue
		}
		loc, ok := item.location()
		if !ok {
			slog.Warn("GDACS item without valid position dropped", "id", item.EventID)
			continue
		}
		mag, ok := item.magnitude()
		if !ok {
			slog.Warn("GDACS item without magnitude dropped", "id", item.EventID)
			continue
		}
		timestamp, err := time.Parse(time.RFC1123, item.PubDate)
		if err != nil {
			slog.Warn("GDACS timestamp parsing failed", "id", item.EventID, "error", err.Error())
		}

		quakes = append(quakes, models.Earthquake{
			ID:        "gdacs_" + item.EventID,
			Source:    "gdacs",
			Title:     item.Title,
			Place:     item.Country,
			Magnitude: mag,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Time:      timestamp.UTC(),
			URL:       item.Link,
			CreatedAt: now,
		})
	}

	return quakes, nil
}
