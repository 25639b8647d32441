// Package metrics defines the Prometheus metric collectors used by the
// gateway and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	IngestDecisionsTotal  *prometheus.CounterVec
	DocumentsQuarantined  prometheus.Counter
	JobsTotal             *prometheus.CounterVec
	JobDuration           *prometheus.HistogramVec
	WebhooksTotal         *prometheus.CounterVec
	CompletionEventsTotal prometheus.Counter
	IntentsTotal          *prometheus.CounterVec
	RetrievalCallDuration *prometheus.HistogramVec
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by method and path.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
		IngestDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_decisions_total",
				Help: "Ingestion pipeline decisions by outcome (accept_upsert, reject_quarantine, archive_as_duplicate, archive_by_quota).",
			},
			[]string{"outcome"},
		),
		DocumentsQuarantined: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_quarantined_total",
				Help: "Files moved to quarantine by the frontmatter validator.",
			},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_total",
				Help: "Ingestion jobs by kind (pdf, web) and terminal status (done, failed).",
			},
			[]string{"kind", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestion_job_duration_seconds",
				Help:    "End-to-end ingestion job duration in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"kind"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_webhooks_total",
				Help: "Completion webhooks received by reported status.",
			},
			[]string{"status"},
		),
		CompletionEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "completion_events_published_total",
				Help: "Completion events published to Kafka.",
			},
		),
		IntentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_intents_total",
				Help: "Classified query intents by user intent.",
			},
			[]string{"intent"},
		),
		RetrievalCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_call_duration_seconds",
				Help:    "External retrieval service call latency by operation.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestDecisionsTotal,
		m.DocumentsQuarantined,
		m.JobsTotal,
		m.JobDuration,
		m.WebhooksTotal,
		m.CompletionEventsTotal,
		m.IntentsTotal,
		m.RetrievalCallDuration,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
