package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WikidataMetrics contains Prometheus metrics for the Wikidata Action API
// client.
type WikidataMetrics struct {
	registry *prometheus.Registry

	apiCallsTotal   *prometheus.CounterVec
	apiCallDuration *prometheus.HistogramVec
	apiErrorsTotal  *prometheus.CounterVec
	cacheOpsTotal   *prometheus.CounterVec
}

// NewWikidataMetrics creates and registers Wikidata client metrics.
func NewWikidataMetrics(registry *prometheus.Registry) (*WikidataMetrics, error) {
	m := &WikidataMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *WikidataMetrics) initMetrics() {
	m.apiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikidata_api_calls_total",
			Help: "Total number of Wikidata Action API calls",
		},
		[]string{"action"}, // action: wbgetentities, wbparsevalue, wbformatvalue
	)

	m.apiCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wikidata_api_call_duration_seconds",
			Help:    "Time taken for Wikidata Action API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	m.apiErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikidata_api_errors_total",
			Help: "Total number of failed Wikidata Action API calls",
		},
		[]string{"action", "category"},
	)

	m.cacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikidata_cache_operations_total",
			Help: "Wikidata client cache hits and misses",
		},
		[]string{"result"}, // result: hit, miss
	)
}

// Describe implements prometheus.Collector.
func (m *WikidataMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.apiCallsTotal.Describe(ch)
	m.apiCallDuration.Describe(ch)
	m.apiErrorsTotal.Describe(ch)
	m.cacheOpsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *WikidataMetrics) Collect(ch chan<- prometheus.Metric) {
	m.apiCallsTotal.Collect(ch)
	m.apiCallDuration.Collect(ch)
	m.apiErrorsTotal.Collect(ch)
	m.cacheOpsTotal.Collect(ch)
}

// RecordAPICall records a completed API call and its duration.
func (m *WikidataMetrics) RecordAPICall(action string, duration time.Duration) {
	m.apiCallsTotal.WithLabelValues(action).Inc()
	m.apiCallDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordAPIError records a failed API call.
func (m *WikidataMetrics) RecordAPIError(action, category string) {
	m.apiErrorsTotal.WithLabelValues(action, category).Inc()
}

// RecordCacheHit records a client cache hit.
func (m *WikidataMetrics) RecordCacheHit() {
	m.cacheOpsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a client cache miss.
func (m *WikidataMetrics) RecordCacheMiss() {
	m.cacheOpsTotal.WithLabelValues("miss").Inc()
}
