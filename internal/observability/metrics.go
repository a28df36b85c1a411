package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alerthub"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Lifecycle metrics.
	ReportsCreated      prometheus.Counter
	CreateFailures      prometheus.Counter
	TriageBatches       *prometheus.CounterVec // labels: outcome={approved,rejected}, result={success,error}
	ReportsTransitioned *prometheus.CounterVec // labels: outcome={approved,rejected}

	// Work queue metrics.
	OutboxPublished  prometheus.Counter
	MessagesConsumed prometheus.Counter
	DecodeErrors     prometheus.Counter
	PipelineRunning  *prometheus.GaugeVec // labels: loop={relay,worker}
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram
	ReportsRequeued  prometheus.Counter

	// Enrichment metrics.
	EnrichmentAttempts *prometheus.CounterVec // labels: locale, outcome={success,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: outcome={success,error,incomplete}
	GeocodeCache       *prometheus.CounterVec   // labels: tier={memory,redis}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: locale
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReportsCreated,
		m.CreateFailures,
		m.TriageBatches,
		m.ReportsTransitioned,
		m.OutboxPublished,
		m.MessagesConsumed,
		m.DecodeErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchDuration,
		m.ReportsRequeued,
		m.EnrichmentAttempts,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_created_total",
			Help:      "Reports committed together with their enrichment task.",
		}),
		CreateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_create_failures_total",
			Help:      "Report submissions rolled back after a persistence or upload failure.",
		}),
		TriageBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triage_batches_total",
			Help:      "Triage batches by outcome and result.",
		}, []string{"outcome", "result"}),
		ReportsTransitioned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_transitioned_total",
			Help:      "Reports moved from the active feed to the archive.",
		}, []string{"outcome"}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Enrichment tasks relayed from the outbox to the work queue.",
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Enrichment task messages read from the work queue.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_decode_errors_total",
			Help:      "Work queue messages that could not be decoded and were skipped.",
		}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the background loop is active, 0 when shut down.",
		}, []string{"loop"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of enrichment tasks per consumed batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of enriching one consumed batch.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ReportsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_requeued_total",
			Help:      "Reports re-enqueued because place names were missing.",
		}),
		EnrichmentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_locales_total",
			Help:      "Per-locale enrichment results.",
		}, []string{"locale", "outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Reverse geocoding request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"locale"}),
	}
}
