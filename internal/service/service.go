package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/safety"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

var (
	ErrLocationUnavailable = errors.New("user location unavailable")
	ErrInvalidEpicenter    = errors.New("earthquake has invalid coordinates")
)

type QuakeSource interface {
	Earthquakes(ctx context.Context, q models.QuakeQuery) ([]models.Earthquake, error)
}

type PlaceSource interface {
	Places(ctx context.Context, center geo.Point, radiusKm float64) ([]safety.Place, error)
}

type Locator interface {
	Locate(ctx context.Context) (geo.Point, error)
}

type Options struct {
	SearchRadiusKm float64
	MinMagnitude   float64
	Lookback       time.Duration
	TopN           int
}

func DefaultOptions() Options {
	return Options{
		SearchRadiusKm: 100,
		MinMagnitude:   3,
		Lookback:       24 * time.Hour,
		TopN:           5,
	}
}

// Service answers "where should I go" for a user near recent earthquake activity.
type Service struct {
	quakes  QuakeSource
	places  PlaceSource
	locator Locator
	opts    Options
	metrics *telemetry.Metrics
}

// New builds a Service. locator and metrics may be nil.
func New(quakes QuakeSource, places PlaceSource, locator Locator, opts Options, metrics *telemetry.Metrics) *Service {
	return &Service{
		quakes:  quakes,
		places:  places,
		locator: locator,
		opts:    opts,
		metrics: metrics,
	}
}

type Request struct {
	User *geo.Point // nil falls back to the locator
	TopN int        // 0 uses the configured default
}

func (s *Service) Evaluate(ctx context.Context, req Request) (*Result, error) {
	res, err := s.evaluate(ctx, req)
	if s.metrics != nil {
		status := "error"
		if err == nil {
			status = res.Status
		}
		s.metrics.Evaluations.WithLabelValues(status).Inc()
	}
	return res, err
}

func (s *Service) evaluate(ctx context.Context, req Request) (*Result, error) {
	user, err := s.resolveUser(ctx, req.User)
	if err != nil {
		return nil, err
	}

	quakes, err := s.quakes.Earthquakes(ctx, models.QuakeQuery{
		Center:       user,
		RadiusKm:     s.opts.SearchRadiusKm,
		MinMagnitude: s.opts.MinMagnitude,
		Lookback:     s.opts.Lookback,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching earthquakes: %w", err)
	}

	strongest := models.Strongest(quakes)
	if strongest == nil {
		slog.Info("no recent earthquakes", "user", user.String(), "radius_km", s.opts.SearchRadiusKm)
		return NoQuakes(), nil
	}

	sigma, err := safety.Sigma(strongest.Magnitude)
	if err != nil {
		return nil, fmt.Errorf("epicenter %s: %w", strongest.ID, err)
	}
	epicenter := strongest.Point()
	if err := epicenter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEpicenter, strongest.ID, err)
	}

	candidates, err := s.places.Places(ctx, epicenter, 3*sigma)
	if err != nil {
		return nil, fmt.Errorf("fetching candidate places: %w", err)
	}

	ranked, err := safety.RankPlaces(epicenter, strongest.Magnitude, user, candidates)
	if err != nil {
		return nil, fmt.Errorf("ranking places: %w", err)
	}

	topN := req.TopN
	if topN <= 0 {
		topN = s.opts.TopN
	}
	top := safety.Top(ranked, topN)

	if s.metrics != nil {
		for _, r := range top {
			s.metrics.RankedPlaces.WithLabelValues(r.Zone.String()).Inc()
		}
	}

	slog.Info("evaluation complete",
		"user", user.String(),
		"epicenter", strongest.ID,
		"magnitude", strongest.Magnitude,
		"candidates", len(candidates),
		"ranked", len(ranked),
		"returned", len(top),
	)

	return newOKResult(user, strongest, top), nil
}

func (s *Service) resolveUser(ctx context.Context, explicit *geo.Point) (geo.Point, error) {
	if explicit != nil {
		if err := explicit.Validate(); err != nil {
			return geo.Point{}, err
		}
		return *explicit, nil
	}
	if s.locator == nil {
		return geo.Point{}, fmt.Errorf("%w: no coordinates supplied and no locator configured", ErrLocationUnavailable)
	}

	p, err := s.locator.Locate(ctx)
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	if err := p.Validate(); err != nil {
		return geo.Point{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	return p, nil
}
