package sources

import (
	"context"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/repository"
)

// StoreSource answers earthquake queries from events already ingested into
// the local repository.
type StoreSource struct {
	repo repository.EarthquakeRepository
	now  func() time.Time
}

func NewStoreSource(repo repository.EarthquakeRepository) *StoreSource {
	return &StoreSource{repo: repo, now: time.Now}
}

func (s *StoreSource) Earthquakes(ctx context.Context, q models.QuakeQuery) ([]models.Earthquake, error) {
	since := s.now().Add(-q.Lookback)
	minMag := q.MinMagnitude
	center := q.Center

	return s.repo.ListEarthquakes(ctx, repository.Filter{
		Since:        &since,
		MinMagnitude: &minMag,
		Near:         &center,
		RadiusKm:     q.RadiusKm,
	})
}
