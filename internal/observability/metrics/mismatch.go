// Package metrics provides Prometheus metric collectors for the Mismatch
// Finder service. All recording methods are fire-and-forget: they never
// return errors and never block the calling operation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MismatchMetrics contains Prometheus metrics for the mismatch read and
// review paths.
type MismatchMetrics struct {
	registry *prometheus.Registry

	// Read path
	requestsTotal      *prometheus.CounterVec
	enrichmentDuration prometheus.Histogram
	resultSizeHist     prometheus.Histogram

	// Review path
	reviewsTotal     *prometheus.CounterVec
	reviewErrors     *prometheus.CounterVec
	reviewBatchSizes prometheus.Histogram
}

// NewMismatchMetrics creates and registers mismatch pipeline metrics.
func NewMismatchMetrics(registry *prometheus.Registry) (*MismatchMetrics, error) {
	m := &MismatchMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MismatchMetrics) initMetrics() {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mismatch_requests_total",
			Help: "Total number of mismatch read requests",
		},
		[]string{"endpoint"}, // endpoint: mismatches, results
	)

	m.enrichmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mismatch_enrichment_duration_seconds",
			Help:    "Time taken to enrich a batch of mismatches",
			Buckets: prometheus.DefBuckets,
		},
	)

	m.resultSizeHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mismatch_result_size",
			Help:    "Number of mismatches returned per read request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 6), // 1 to ~1k
		},
	)

	m.reviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mismatch_reviews_total",
			Help: "Total number of review decisions applied",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	m.reviewErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mismatch_review_errors_total",
			Help: "Total number of failed review attempts",
		},
		[]string{"category"}, // category: not-found, conflict, validation, database
	)

	m.reviewBatchSizes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mismatch_review_batch_size",
			Help:    "Number of decisions per bulk review request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
		},
	)
}

// Describe implements prometheus.Collector.
func (m *MismatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.requestsTotal.Describe(ch)
	m.enrichmentDuration.Describe(ch)
	m.resultSizeHist.Describe(ch)
	m.reviewsTotal.Describe(ch)
	m.reviewErrors.Describe(ch)
	m.reviewBatchSizes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *MismatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.requestsTotal.Collect(ch)
	m.enrichmentDuration.Collect(ch)
	m.resultSizeHist.Collect(ch)
	m.reviewsTotal.Collect(ch)
	m.reviewErrors.Collect(ch)
	m.reviewBatchSizes.Collect(ch)
}

// RecordRequest increments the read request counter for an endpoint.
func (m *MismatchMetrics) RecordRequest(endpoint string) {
	m.requestsTotal.WithLabelValues(endpoint).Inc()
}

// RecordEnrichmentDuration records the duration of an enrichment run.
func (m *MismatchMetrics) RecordEnrichmentDuration(duration time.Duration) {
	m.enrichmentDuration.Observe(duration.Seconds())
}

// RecordResultSize records the number of mismatches returned by a read.
func (m *MismatchMetrics) RecordResultSize(count int) {
	m.resultSizeHist.Observe(float64(count))
}

// RecordReview increments the review counter for a decision status.
func (m *MismatchMetrics) RecordReview(status string) {
	m.reviewsTotal.WithLabelValues(status).Inc()
}

// RecordReviewError increments the review error counter for an error category.
func (m *MismatchMetrics) RecordReviewError(category string) {
	m.reviewErrors.WithLabelValues(category).Inc()
}

// RecordReviewBatchSize records the size of a bulk review request.
func (m *MismatchMetrics) RecordReviewBatchSize(size int) {
	m.reviewBatchSizes.Observe(float64(size))
}
