package models

import (
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
)

// QuakeQuery selects recent earthquakes around a point.
type QuakeQuery struct {
	Center       geo.Point
	RadiusKm     float64
	MinMagnitude float64
	Lookback     time.Duration
}
