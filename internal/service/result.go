package service

import (
	"encoding/json"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/safety"
)

const (
	StatusOK       = "ok"
	StatusNoQuakes = "no_quakes"

	noQuakesMessage = "No recent earthquakes detected nearby."
)

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Epicenter struct {
	Lat   float64    `json:"lat"`
	Lon   float64    `json:"lon"`
	Place string     `json:"place"`
	ID    string     `json:"id,omitempty"`
	Time  *time.Time `json:"time,omitempty"`
}

type PlaceInfo struct {
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Category string  `json:"category,omitempty"`
}

type SafePlace struct {
	Place       PlaceInfo `json:"place"`
	DistToUser  float64   `json:"dist_to_user"`
	SafetyScore float64   `json:"safety_score"`
	Zone        string    `json:"zone"`
}

// Result is the payload every surface exposes. A no_quakes result carries
// only its message.
type Result struct {
	Status       string      `json:"status"`
	Message      string      `json:"message,omitempty"`
	UserLocation *Location   `json:"user_location,omitempty"`
	Epicenter    *Epicenter  `json:"epicenter,omitempty"`
	Magnitude    float64     `json:"magnitude,omitempty"`
	SafePlaces   []SafePlace `json:"safe_places"`
}

func NoQuakes() *Result {
	return &Result{Status: StatusNoQuakes, Message: noQuakesMessage}
}

func newOKResult(user geo.Point, quake *models.Earthquake, ranked []safety.RankedPlace) *Result {
	epicenter := &Epicenter{
		Lat:   quake.Latitude,
		Lon:   quake.Longitude,
		Place: quake.Place,
		ID:    quake.ID,
	}
	if !quake.Time.IsZero() {
		t := quake.Time
		epicenter.Time = &t
	}

	places := make([]SafePlace, 0, len(ranked))
	for _, r := range ranked {
		places = append(places, SafePlace{
			Place: PlaceInfo{
				Name:     r.Place.Name,
				Lat:      r.Place.Location.Latitude,
				Lon:      r.Place.Location.Longitude,
				Category: r.Place.Category,
			},
			DistToUser:  r.DistanceToUserKm,
			SafetyScore: r.SafetyScore,
			Zone:        r.Zone.String(),
		})
	}

	return &Result{
		Status:       StatusOK,
		UserLocation: &Location{Lat: user.Latitude, Lon: user.Longitude},
		Epicenter:    epicenter,
		Magnitude:    quake.Magnitude,
		SafePlaces:   places,
	}
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Status == StatusNoQuakes {
		return json.Marshal(struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}{r.Status, r.Message})
	}

	type plain Result
	p := plain(r)
	if p.SafePlaces == nil {
		p.SafePlaces = []SafePlace{}
	}
	return json.Marshal(p)
}
