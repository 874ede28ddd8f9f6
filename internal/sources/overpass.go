package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/safety"
)

// placeTag is an OSM key=value pair that marks a gathering place.
type placeTag struct {
	Key      string
	Value    string
	Category string
}

var placeTags = []placeTag{
	{Key: "leisure", Value: "park", Category: "park"},
	{Key: "amenity", Value: "school", Category: "school"},
	{Key: "leisure", Value: "stadium", Category: "stadium"},
	{Key: "amenity", Value: "hospital", Category: "hospital"},
	{Key: "amenity", Value: "fire_station", Category: "fire_station"},
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  *float64          `json:"lat"`
	Lon  *float64          `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// OverpassClient finds candidate places in OpenStreetMap through the Overpass API.
type OverpassClient struct {
	url string
	req *requester
}

func NewOverpassClient(apiURL string, opts Options) *OverpassClient {
	return &OverpassClient{
		url: apiURL,
		req: newRequester("overpass", opts),
	}
}

func (c *OverpassClient) Places(ctx context.Context, center geo.Point, radiusKm float64) ([]safety.Place, error) {
	form := url.Values{}
	form.Set("data", buildOverpassQuery(center, radiusKm))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.req.do(req)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}

	var data overpassResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: overpass: error decoding resp.Body: %w", ErrUpstream, err)
	}

	return toPlaces(data.Elements), nil
}

func buildOverpassQuery(center geo.Point, radiusKm float64) string {
	around := fmt.Sprintf("(around:%.0f,%s,%s)", radiusKm*1000,
		formatCoord(center.Latitude), formatCoord(center.Longitude))

	var b strings.Builder
	b.WriteString("[out:json];\n(\n")
	for _, t := range placeTags {
		fmt.Fprintf(&b, "  node[%q=%q]%s;\n", t.Key, t.Value, around)
	}
	b.WriteString(");\nout body;\n")
	return b.String()
}

// toPlaces drops elements without coordinates and duplicate node ids.
func toPlaces(elements []overpassElement) []safety.Place {
	seen := make(map[string]bool, len(elements))
	places := make([]safety.Place, 0, len(elements))

	for _, el := range elements {
		if el.Lat == nil || el.Lon == nil {
			continue
		}
		loc := geo.NewPoint(*el.Lat, *el.Lon)
		if err := loc.Validate(); err != nil {
			slog.Debug("skipping Overpass element with invalid coordinates", "type", el.Type, "id", el.ID)
			continue
		}
		id := fmt.Sprintf("%s/%d", el.Type, el.ID)
		if seen[id] {
			continue
		}
		seen[id] = true

		name := el.Tags["name"]
		if name == "" {
			name = safety.UnknownPlaceName
		}
		places = append(places, safety.Place{
			ID:       id,
			Name:     name,
			Category: category(el.Tags),
			Location: loc,
		})
	}
	return places
}

func category(tags map[string]string) string {
	for _, t := range placeTags {
		if tags[t.Key] == t.Value {
			return t.Category
		}
	}
	return ""
}

func formatCoord(f float64) string {
	return fmt.Sprintf("%.6f", f)
}
