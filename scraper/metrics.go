package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	RecordsExtractedTotal prometheus.Counter
	DuplicatesTotal       prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
	RunsTotal             *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total listing page fetches by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Listing page fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)
	recordsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_extracted_total",
			Help: "Total number of records extracted from listing pages.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_duplicates_skipped_total",
			Help: "Records skipped because their id was already seen in the run.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Completed runs by terminal state.",
		},
		[]string{"state"},
	)

	registry.MustRegister(requests, fetchDuration, recordsExtracted, duplicates, errorsTotal, runs)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		FetchDuration:         fetchDuration,
		RecordsExtractedTotal: recordsExtracted,
		DuplicatesTotal:       duplicates,
		ErrorsTotal:           errorsTotal,
		RunsTotal:             runs,
	}
}

// IncRequest increments the requests counter.
func (m *Metrics) IncRequest(strategy, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveFetch records a page fetch duration.
func (m *Metrics) ObserveFetch(strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// AddRecords adds n to the extracted records counter.
func (m *Metrics) AddRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsExtractedTotal.Add(float64(n))
}

// IncDuplicate increments the duplicates counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRun counts a finished run.
func (m *Metrics) IncRun(state string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
}
