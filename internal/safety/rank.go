package safety

import (
	"fmt"
	"math"
	"slices"

	"github.com/mr1hm/go-quake-safety/internal/geo"
)

// UnknownPlaceName is used for candidates without a name tag.
const UnknownPlaceName = "Unknown Place"

// Place is a candidate gathering location.
type Place struct {
	ID       string
	Name     string
	Category string
	Location geo.Point
}

type RankedPlace struct {
	Place            Place
	DistanceToUserKm float64
	SafetyScore      float64
	Zone             Zone
}

// RankPlaces zones and scores every candidate around the epicenter, drops
// those beyond the green zone, and orders the rest green first, then yellow,
// then red, nearest to the user first within a zone.
func RankPlaces(epicenter geo.Point, magnitude float64, user geo.Point, candidates []Place) ([]RankedPlace, error) {
	sigma, err := Sigma(magnitude)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedPlace, 0, len(candidates))
	for _, c := range candidates {
		toEpicenter := geo.DistanceKm(epicenter, c.Location)
		toUser := geo.DistanceKm(user, c.Location)
		if !isFinite(toEpicenter) || !isFinite(toUser) {
			return nil, fmt.Errorf("%w: candidate %q at %s", ErrNonFinite, c.Name, c.Location)
		}

		zone := ClassifyZone(toEpicenter, sigma)
		if zone == ZoneNone {
			continue
		}

		ranked = append(ranked, RankedPlace{
			Place:            c,
			DistanceToUserKm: toUser,
			SafetyScore:      Score(toEpicenter, sigma),
			Zone:             zone,
		})
	}

	slices.SortStableFunc(ranked, compareRanked)
	return ranked, nil
}

func compareRanked(a, b RankedPlace) int {
	if d := a.Zone.Rank() - b.Zone.Rank(); d != 0 {
		return d
	}
	switch {
	case a.DistanceToUserKm < b.DistanceToUserKm:
		return -1
	case a.DistanceToUserKm > b.DistanceToUserKm:
		return 1
	default:
		return 0
	}
}

// Top returns the first n entries of ranked. n <= 0 returns all of them.
func Top(ranked []RankedPlace, n int) []RankedPlace {
	if n <= 0 || n >= len(ranked) {
		return ranked
	}
	return ranked[:n]
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
