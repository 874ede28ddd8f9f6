package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mr1hm/go-quake-safety/internal/broadcast"
	"github.com/mr1hm/go-quake-safety/internal/config"
	"github.com/mr1hm/go-quake-safety/internal/models"
	"github.com/mr1hm/go-quake-safety/internal/repository"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
	"github.com/mr1hm/go-quake-safety/internal/worker"
)

// Feed is an upstream list of recent earthquakes polled on a schedule.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Earthquake, error)
}

type Poller struct {
	Feed     Feed
	Interval time.Duration
}

type Manager struct {
	cfg         *config.Config
	repo        repository.EarthquakeRepository
	broadcaster *broadcast.Broadcaster
	metrics     *telemetry.Metrics
	pollers     []Poller
	pool        *worker.Pool[models.Earthquake]
	wg          sync.WaitGroup
}

// NewManager wires the pollers to the repository. broadcaster and metrics may be nil.
func NewManager(cfg *config.Config, repo repository.EarthquakeRepository, broadcaster *broadcast.Broadcaster, metrics *telemetry.Metrics, pollers ...Poller) *Manager {
	return &Manager{
		cfg:         cfg,
		repo:        repo,
		broadcaster: broadcaster,
		metrics:     metrics,
		pollers:     pollers,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewPool("ingestion", m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process)
	m.pool.Start(ctx)

	for _, p := range m.pollers {
		m.wg.Add(1)
		go m.runPoller(ctx, p)
	}

	if m.cfg.Sources.Retention > 0 {
		m.wg.Add(1)
		go m.runPruner(ctx, m.cfg.Sources.Retention)
	}
}

func (m *Manager) process(ctx context.Context, quake models.Earthquake) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := m.repo.Exists(ctx, quake.ID)
	if err != nil {
		slog.Error("error checking existence", "id", quake.ID, "error", err)
		return err
	}
	if exists {
		return nil
	}

	if err := m.repo.Add(ctx, &quake); err != nil {
		slog.Error("error adding earthquake", "id", quake.ID, "error", err)
		return err
	}
	if m.metrics != nil {
		m.metrics.Ingested.WithLabelValues(quake.Source).Inc()
	}

	// Stream subscribers only hear about strong events
	if m.broadcaster != nil && quake.Magnitude >= m.cfg.Stream.MinMagnitude {
		m.broadcaster.Broadcast(&quake)
	}

	slog.Info("added earthquake", "id", quake.ID, "magnitude", quake.Magnitude, "source", quake.Source)
	return nil
}

func (m *Manager) runPoller(ctx context.Context, p Poller) {
	defer m.wg.Done()
	source := p.Feed.Name()
	slog.Info("starting poller", "source", source, "interval", p.Interval)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx, p.Feed)

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller shutting down", "source", source)
			return
		case <-ticker.C:
			m.poll(ctx, p.Feed)
		}
	}
}

func (m *Manager) poll(ctx context.Context, feed Feed) {
	source := feed.Name()
	slog.Debug("polling", "source", source)

	quakes, err := feed.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("poll failed", "source", source, "error", err)
		}
		return
	}

	for _, q := range quakes {
		if !m.pool.Submit(ctx, q) {
			return
		}
	}

	slog.Debug("poll complete", "source", source, "count", len(quakes))
}

func (m *Manager) runPruner(ctx context.Context, retention time.Duration) {
	defer m.wg.Done()

	interval := retention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune(ctx, retention)
		}
	}
}

func (m *Manager) prune(ctx context.Context, retention time.Duration) {
	n, err := m.repo.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		slog.Error("prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("pruned old earthquakes", "count", n, "retention", retention)
	}
}

// Stop waits for pollers to exit, then drains the pool. Cancel the Start
// context first.
func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	slog.Info("ingestion manager stopped")
}
