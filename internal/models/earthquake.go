package models

import (
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
)

type Earthquake struct {
	ID        string // Unique ID from source (e.g., "usgs_us7000abcd")
	Source    string // "usgs" or "gdacs"
	Title     string
	Place     string // descriptive location label, may be empty
	Magnitude float64
	Latitude  float64
	Longitude float64
	Depth     float64   // kilometers
	Time      time.Time // when the event occurred, zero if unknown
	URL       string    // link to the event page
	CreatedAt time.Time // when we ingested it
}

func (e *Earthquake) Point() geo.Point {
	return geo.NewPoint(e.Latitude, e.Longitude)
}

// Strongest returns the event with the largest magnitude. Ties keep the
// first one in list order. It returns nil for an empty list.
func Strongest(quakes []Earthquake) *Earthquake {
	var best *Earthquake
	for i := range quakes {
		if best == nil || quakes[i].Magnitude > best.Magnitude {
			best = &quakes[i]
		}
	}
	return best
}
