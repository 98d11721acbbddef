// Package metrics provides Prometheus metrics for the legal database
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sublatesublate-design/legal-database/cache"
)

const namespace = "legaldb"

// Metrics holds every collector on its own registry
type Metrics struct {
	Registry *prometheus.Registry

	// Tool-call metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Verification outcomes
	VerificationsTotal *prometheus.CounterVec

	// Connection pool metrics
	PoolInUse          prometheus.Gauge
	PoolWaitSeconds    prometheus.Histogram
	PoolExhaustedTotal prometheus.Counter

	// Ingestion metrics
	IngestDocumentsTotal *prometheus.CounterVec
	IngestArticlesTotal  prometheus.Counter
	IngestWarningsTotal  prometheus.Counter
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{Registry: reg}

	m.ToolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.ToolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of tool calls in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	m.VerificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citation_verifications_total",
			Help:      "Citation verifications by classification",
		},
		[]string{"classification"},
	)

	m.PoolInUse = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "in_use",
			Help:      "Store handles currently held",
		},
	)

	m.PoolWaitSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a store handle",
			Buckets:   []float64{.0001, .001, .005, .01, .05, .1, .5, 1, 2.5},
		},
	)

	m.PoolExhaustedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Acquires that timed out with no free handle",
		},
	)

	m.IngestDocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Ingested documents by result",
		},
		[]string{"result"},
	)

	m.IngestArticlesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "articles_total",
			Help:      "Articles written by ingestion",
		},
	)

	m.IngestWarningsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "warnings_total",
			Help:      "Parse warnings raised during ingestion",
		},
	)

	return m
}

// RecordToolCall records one tool call
func (m *Metrics) RecordToolCall(operation, outcome string, duration time.Duration) {
	m.ToolCallsTotal.WithLabelValues(operation, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordVerification counts a verification classification
func (m *Metrics) RecordVerification(classification string) {
	m.VerificationsTotal.WithLabelValues(classification).Inc()
}

// RecordIngest records the outcome of one ingested document
func (m *Metrics) RecordIngest(result string, articles, warnings int) {
	m.IngestDocumentsTotal.WithLabelValues(result).Inc()
	m.IngestArticlesTotal.Add(float64(articles))
	m.IngestWarningsTotal.Add(float64(warnings))
}

// SlotAcquired implements pool.Observer
func (m *Metrics) SlotAcquired(wait time.Duration) {
	m.PoolWaitSeconds.Observe(wait.Seconds())
}

// SlotExhausted implements pool.Observer
func (m *Metrics) SlotExhausted() {
	m.PoolExhaustedTotal.Inc()
}

// SlotsInUse implements pool.Observer
func (m *Metrics) SlotsInUse(n int64) {
	m.PoolInUse.Set(float64(n))
}

// WatchCache exports the counters of a query cache
func (m *Metrics) WatchCache(stats func() cache.Stats) {
	counter := func(name, help string, read func(cache.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}

	m.Registry.MustRegister(
		counter("hits_total", "Cache hits", func(s cache.Stats) int64 { return s.Hits }),
		counter("misses_total", "Cache misses", func(s cache.Stats) int64 { return s.Misses }),
		counter("evictions_total", "Entries evicted by capacity", func(s cache.Stats) int64 { return s.Evictions }),
		counter("invalidations_total", "Entries dropped by write invalidation", func(s cache.Stats) int64 { return s.Invalidations }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently cached",
		}, func() float64 { return float64(stats().Entries) }),
	)
}

// WatchIndex exports the size of the search index
func (m *Metrics) WatchIndex(stats func() (laws, articles int)) {
	m.Registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "laws",
			Help:      "Laws in the search index",
		}, func() float64 { l, _ := stats(); return float64(l) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "articles",
			Help:      "Articles in the search index",
		}, func() float64 { _, a := stats(); return float64(a) }),
	)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
