package safety

import (
	"errors"
	"fmt"
	"math"
)

// SigmaPerMagnitude converts magnitude to zone spread in kilometers.
const SigmaPerMagnitude = 5.0

var (
	ErrInvalidMagnitude = errors.New("invalid magnitude")
	ErrNonFinite        = errors.New("non-finite distance")
)

type Zone string

const (
	ZoneNone   Zone = ""
	ZoneRed    Zone = "red"
	ZoneYellow Zone = "yellow"
	ZoneGreen  Zone = "green"
)

// Rank is the sort ordinal of a zone: green before yellow before red.
// Excluded points rank last.
func (z Zone) Rank() int {
	switch z {
	case ZoneGreen:
		return 0
	case ZoneYellow:
		return 1
	case ZoneRed:
		return 2
	default:
		return 3
	}
}

func (z Zone) String() string {
	if z == ZoneNone {
		return "none"
	}
	return string(z)
}

// Sigma returns the zone spread for magnitude, in kilometers.
func Sigma(magnitude float64) (float64, error) {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) || magnitude <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMagnitude, magnitude)
	}
	return magnitude * SigmaPerMagnitude, nil
}

// ClassifyZone returns the smallest concentric zone around the epicenter
// that contains a point distanceKm away, or ZoneNone beyond 3 sigma.
func ClassifyZone(distanceKm, sigmaKm float64) Zone {
	switch {
	case distanceKm <= sigmaKm:
		return ZoneRed
	case distanceKm <= 2*sigmaKm:
		return ZoneYellow
	case distanceKm <= 3*sigmaKm:
		return ZoneGreen
	default:
		return ZoneNone
	}
}

// maxScore is the largest float64 below 1.
var maxScore = math.Nextafter(1, 0)

// Score is the Gaussian survival curve 1 - exp(-d²/2σ²). It is 0 at the
// epicenter and approaches 1 with distance without reaching it.
func Score(distanceKm, sigmaKm float64) float64 {
	s := 1 - math.Exp(-(distanceKm*distanceKm)/(2*sigmaKm*sigmaKm))
	return math.Min(s, maxScore)
}
