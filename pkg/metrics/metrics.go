// Package metrics provides Prometheus metrics for fern runs. Stages are short-lived
// batch processes, so the registry is pushed to a Pushgateway at exit rather than scraped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every fern collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// StageRunsTotal tracks stage runs by outcome
	StageRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Total number of stage runs by outcome",
		},
		[]string{"stage", "environment", "outcome"},
	)

	// StageDuration tracks stage run duration in seconds
	StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Duration of stage runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage"},
	)

	// StageItems records the size of each report list, e.g. unresolved or mismatches
	StageItems = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "stage",
			Name:      "items",
			Help:      "Number of items in a stage report list",
		},
		[]string{"stage", "list"},
	)

	// GatePass is 1 when the last delta gate passed and 0 otherwise
	GatePass = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "gate",
			Name:      "pass",
			Help:      "Result of the last delta gate run",
		},
		[]string{"environment"},
	)

	// CanonicalWritesTotal tracks canonical store writes by operation and outcome
	CanonicalWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "canonical",
			Name:      "writes_total",
			Help:      "Total number of canonical store writes",
		},
		[]string{"operation", "outcome"},
	)

	// GeocodingRequestsTotal tracks outbound geocoding requests
	GeocodingRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "geocoding",
			Name:      "requests_total",
			Help:      "Total number of geocoding provider requests",
		},
		[]string{"endpoint", "status_code"},
	)

	// GeocodingRequestDuration tracks geocoding request duration
	GeocodingRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "geocoding",
			Name:      "request_duration_seconds",
			Help:      "Duration of geocoding provider requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// GeocodingCacheHits tracks provider lookups served from the cache
	GeocodingCacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "geocoding",
			Name:      "cache_hits_total",
			Help:      "Total number of geocoding lookups served from cache",
		},
	)

	// ResolutionsTotal tracks city resolutions by source (inline, external, failed)
	ResolutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "identity",
			Name:      "resolutions_total",
			Help:      "Total number of city resolutions by source",
		},
		[]string{"source"},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}
