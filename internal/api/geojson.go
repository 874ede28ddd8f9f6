package api

import (
	"encoding/json"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/service"
)

// Feature kinds in a safe-places collection.
const (
	kindUser      = "user"
	kindEpicenter = "epicenter"
	kindSafePlace = "safe_place"
)

func point(lat, lon float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat})
}

// earthquakesToGeoJSON encodes earthquakes the way the USGS feeds do, with
// depth as the third coordinate.
func earthquakesToGeoJSON(quakes []models.Earthquake) ([]byte, error) {
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(quakes)),
	}

	for _, e := range quakes {
		props := map[string]any{
			"title":     e.Title,
			"place":     e.Place,
			"magnitude": e.Magnitude,
			"depth_km":  e.Depth,
			"source":    e.Source,
			"url":       e.URL,
		}
		if !e.Time.IsZero() {
			props["time"] = e.Time.UTC().Format(time.RFC3339)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         e.ID,
			Geometry:   geom.NewPointFlat(geom.XYZ, []float64{e.Longitude, e.Latitude, e.Depth}),
			Properties: props,
		})
	}

	return json.Marshal(fc)
}

// resultToGeoJSON renders a ranking with the user and the epicenter as
// extra features. A no_quakes result yields an empty collection.
func resultToGeoJSON(res *service.Result) ([]byte, error) {
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(res.SafePlaces)+2),
	}

	if res.Status != service.StatusOK {
		return json.Marshal(fc)
	}

	if u := res.UserLocation; u != nil {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   point(u.Lat, u.Lon),
			Properties: map[string]any{"kind": kindUser},
		})
	}
	if ep := res.Epicenter; ep != nil {
		props := map[string]any{
			"kind":      kindEpicenter,
			"place":     ep.Place,
			"magnitude": res.Magnitude,
		}
		if ep.Time != nil {
			props["time"] = ep.Time.UTC().Format(time.RFC3339)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         ep.ID,
			Geometry:   point(ep.Lat, ep.Lon),
			Properties: props,
		})
	}

	for i, sp := range res.SafePlaces {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: point(sp.Place.Lat, sp.Place.Lon),
			Properties: map[string]any{
				"kind":         kindSafePlace,
				"rank":         i + 1,
				"name":         sp.Place.Name,
				"category":     sp.Place.Category,
				"zone":         sp.Zone,
				"safety_score": sp.SafetyScore,
				"dist_to_user": sp.DistToUser,
			},
		})
	}

	return json.Marshal(fc)
}
