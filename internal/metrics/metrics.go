// Package metrics holds the Prometheus collectors for search, indexing and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kensaku"

// Metrics is a set of collectors bound to their own registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	SearchTotal         *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchResults       prometheus.Histogram
	BranchFailures      *prometheus.CounterVec
	BranchDuration      *prometheus.HistogramVec
	IndexedDocuments    *prometheus.CounterVec
	IndexDuration       prometheus.Histogram
	EmbeddedChunks      prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		SearchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of fused search queries",
		}, []string{"status"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Fused search latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per fused query",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		BranchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "branch_failures_total",
			Help:      "Search branch failures by branch and error kind",
		}, []string{"branch", "kind"}),
		BranchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "branch_duration_seconds",
			Help:      "Latency of the lexical and vector branches in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
		}, []string{"branch"}),
		IndexedDocuments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "documents_total",
			Help:      "Documents processed by the indexer by outcome",
		}, []string{"status"}),
		IndexDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "document_duration_seconds",
			Help:      "Time to index one document in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
		EmbeddedChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "embedded_chunks_total",
			Help:      "Chunks embedded and stored",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveSearch records one fused query.
func (m *Metrics) ObserveSearch(mode, status string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.SearchTotal.WithLabelValues(status).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(d.Seconds())
	if status == "ok" {
		m.SearchResults.Observe(float64(results))
	}
}

// ObserveBranch records one lexical or vector branch run; kind is empty on success.
func (m *Metrics) ObserveBranch(branch, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.BranchDuration.WithLabelValues(branch).Observe(d.Seconds())
	if kind != "" {
		m.BranchFailures.WithLabelValues(branch, kind).Inc()
	}
}

// ObserveIndex records one indexed document and the chunks embedded for it.
func (m *Metrics) ObserveIndex(status string, d time.Duration, chunks int) {
	if m == nil {
		return
	}
	m.IndexedDocuments.WithLabelValues(status).Inc()
	m.IndexDuration.Observe(d.Seconds())
	m.EmbeddedChunks.Add(float64(chunks))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
