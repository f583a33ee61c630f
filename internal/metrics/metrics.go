// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch kinds.
const (
	KindPage = "page"
	KindPDF  = "pdf"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	cacheLookupsTotal          *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	documentsTotal             *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Fetch attempts, labeled by kind (page, pdf) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Latency of completed fetches.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_cache_lookups_total",
				Help: "Download cache lookups, labeled by outcome (hit, miss, error).",
			},
			[]string{"outcome"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_extractions_total",
				Help: "Text extraction attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_documents_total",
				Help: "Documents added to the corpus, labeled by site.",
			},
			[]string{"site"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "URLs currently being processed.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Time spent waiting on the per-domain rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Requests served by the progress API, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Progress API latency, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch counts a fetch and, when it took measurable time, records its latency.
func ObserveFetch(kind, outcome string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(kind, outcome).Inc()
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveCacheLookup counts a download cache lookup.
func ObserveCacheLookup(outcome string) {
	Init()
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtraction counts one strategy attempt.
func ObserveExtraction(strategy, outcome string) {
	Init()
	extractionsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveDocument counts a record added to the corpus.
func ObserveDocument(site string) {
	Init()
	documentsTotal.WithLabelValues(site).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records a rate limiter wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a request served by the progress API.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
