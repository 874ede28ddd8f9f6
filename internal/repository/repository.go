package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
)

var ErrNotFound = errors.New("earthquake not found")

type Filter struct {
	Limit        int
	Since        *time.Time
	MinMagnitude *float64
	Near         *geo.Point // with RadiusKm, keep events within RadiusKm of Near
	RadiusKm     float64
}

type EarthquakeRepository interface {
	Add(ctx context.Context, e *models.Earthquake) error
	GetByID(ctx context.Context, id string) (*models.Earthquake, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListEarthquakes(ctx context.Context, opts Filter) ([]models.Earthquake, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
