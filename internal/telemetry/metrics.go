package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quake_safety"

// Metrics holds the service collectors on a private registry so tests can
// build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// Evaluations counts safe-place evaluations by result status
	Evaluations *prometheus.CounterVec

	// UpstreamErrors counts failed calls to external data sources
	UpstreamErrors *prometheus.CounterVec

	// Ingested counts new earthquake events stored by the feed pollers
	Ingested *prometheus.CounterVec

	// RankedPlaces counts places returned to callers by zone
	RankedPlaces *prometheus.CounterVec

	// UpstreamLatency observes external call durations
	UpstreamLatency *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of safe-place evaluations",
			},
			[]string{"status"},
		),
		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of failed upstream requests",
			},
			[]string{"source"},
		),
		Ingested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingested_events_total",
				Help:      "Total number of new earthquake events ingested",
			},
			[]string{"source"},
		),
		RankedPlaces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranked_places_total",
				Help:      "Total number of ranked places returned, by zone",
			},
			[]string{"zone"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_seconds",
				Help:      "Duration of upstream requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}

	m.registry.MustRegister(
		m.Evaluations,
		m.UpstreamErrors,
		m.Ingested,
		m.RankedPlaces,
		m.UpstreamLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
