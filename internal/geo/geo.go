package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6371000.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func NewPoint(lat, lon float64) Point {
	return Point{Latitude: lat, Longitude: lon}
}

func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// DistanceKm returns the haversine great-circle distance between a and b in
// kilometers, rounded to 3 decimal places.
func DistanceKm(a, b Point) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	sinDPhi := math.Sin(dPhi / 2)
	sinDLambda := math.Sin(dLambda / 2)

	h := sinDPhi*sinDPhi + math.Cos(phi1)*math.Cos(phi2)*sinDLambda*sinDLambda
	// rounding can push h just outside [0, 1] for antipodal points
	h = math.Max(0, math.Min(1, h))

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	km := EarthRadiusMeters * c / 1000.0

	return math.Round(km*1000) / 1000
}

// BoundingBox returns a lat/lon box that contains every point within
// radiusKm of center. Longitude bounds widen to the full range near the poles
// and when the box would cross the antimeridian.
func BoundingBox(center Point, radiusKm float64) (minLat, maxLat, minLon, maxLon float64) {
	dLat := radiusKm / (EarthRadiusMeters / 1000.0) * 180 / math.Pi

	minLat = math.Max(-90, center.Latitude-dLat)
	maxLat = math.Min(90, center.Latitude+dLat)

	cosLat := math.Cos(toRadians(math.Max(math.Abs(minLat), math.Abs(maxLat))))
	if cosLat < 1e-9 || minLat == -90 || maxLat == 90 {
		return minLat, maxLat, -180, 180
	}

	dLon := dLat / cosLat
	minLon = center.Longitude - dLon
	maxLon = center.Longitude + dLon
	if minLon < -180 || maxLon > 180 {
		// crosses the antimeridian
		return minLat, maxLat, -180, 180
	}
	return minLat, maxLat, minLon, maxLon
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
