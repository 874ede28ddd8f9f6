// Package app assembles the ranking service from configuration so that every
// binary wires its collaborators the same way.
package app

import (
	"fmt"

	"github.com/mr1hm/go-quake-safety/internal/config"
	"github.com/mr1hm/go-quake-safety/internal/geo"
	"github.com/mr1hm/go-quake-safety/internal/ingestion"
	"github.com/mr1hm/go-quake-safety/internal/repository"
	"github.com/mr1hm/go-quake-safety/internal/service"
	"github.com/mr1hm/go-quake-safety/internal/sources"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

func sourceOptions(cfg *config.Config, metrics *telemetry.Metrics) sources.Options {
	return sources.Options{
		Timeout: cfg.Upstream.Timeout,
		RPS:     cfg.Upstream.RPS,
		Metrics: metrics,
	}
}

func ServiceOptions(cfg *config.Config) service.Options {
	return service.Options{
		SearchRadiusKm: cfg.Safety.SearchRadiusKm,
		MinMagnitude:   cfg.Safety.MinMagnitude,
		Lookback:       cfg.Safety.Lookback,
		TopN:           cfg.Safety.TopN,
	}
}

// QuakeSource picks the per-request earthquake collaborator. The store
// source needs repo and reads only what ingestion has already cached.
func QuakeSource(cfg *config.Config, repo repository.EarthquakeRepository, metrics *telemetry.Metrics) (service.QuakeSource, error) {
	switch cfg.Upstream.QuakeSource {
	case config.QuakeSourceUSGS:
		return sources.NewUSGSClient(cfg.Upstream.USGSQueryURL, cfg.Sources.USGSURL, sourceOptions(cfg, metrics)), nil
	case config.QuakeSourceStore:
		if repo == nil {
			return nil, fmt.Errorf("quake source %q requires a database", config.QuakeSourceStore)
		}
		return sources.NewStoreSource(repo), nil
	default:
		return nil, fmt.Errorf("unknown quake source %q", cfg.Upstream.QuakeSource)
	}
}

func PlaceSource(cfg *config.Config, metrics *telemetry.Metrics) service.PlaceSource {
	return sources.NewOverpassClient(cfg.Upstream.OverpassURL, sourceOptions(cfg, metrics))
}

// Locator builds the fallback chain used when a request carries no
// coordinates: configured default first, then IP geolocation when allowed.
// It returns nil when nothing is configured.
func Locator(cfg *config.Config, allowIPInfo bool, metrics *telemetry.Metrics) service.Locator {
	var chain sources.LocatorChain
	if cfg.Location.DefaultLat != nil && cfg.Location.DefaultLon != nil {
		chain = append(chain, sources.StaticLocator{
			Point: geo.NewPoint(*cfg.Location.DefaultLat, *cfg.Location.DefaultLon),
		})
	}
	if allowIPInfo && cfg.Location.IPInfoEnabled {
		chain = append(chain, sources.NewIPInfoLocator(cfg.Location.IPInfoURL, sourceOptions(cfg, metrics)))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// Pollers returns the enabled background feeds.
func Pollers(cfg *config.Config, metrics *telemetry.Metrics) []ingestion.Poller {
	opts := sourceOptions(cfg, metrics)

	var pollers []ingestion.Poller
	if cfg.Sources.USGSEnabled {
		pollers = append(pollers, ingestion.Poller{
			Feed:     sources.NewUSGSClient(cfg.Upstream.USGSQueryURL, cfg.Sources.USGSURL, opts),
			Interval: cfg.Sources.USGSPollInterval,
		})
	}
	if cfg.Sources.GDACSEnabled {
		pollers = append(pollers, ingestion.Poller{
			Feed:     sources.NewGDACSClient(cfg.Sources.GDACSURL, opts),
			Interval: cfg.Sources.GDACSPollInterval,
		})
	}
	return pollers
}

func NewService(cfg *config.Config, repo repository.EarthquakeRepository, locator service.Locator, metrics *telemetry.Metrics) (*service.Service, error) {
	quakes, err := QuakeSource(cfg, repo, metrics)
	if err != nil {
		return nil, err
	}
	return service.New(quakes, PlaceSource(cfg, metrics), locator, ServiceOptions(cfg), metrics), nil
}
