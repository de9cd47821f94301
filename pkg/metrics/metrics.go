// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
	HTTPRequestsInFlight   prometheus.Gauge
	RecommendationsTotal   *prometheus.CounterVec
	RecommendationLatency  *prometheus.HistogramVec
	RecommendationResults  prometheus.Histogram
	SearchQueriesTotal     *prometheus.CounterVec
	SearchResultsCount     prometheus.Histogram
	CachedFallbacksTotal   prometheus.Counter
	ActivitiesTrackedTotal *prometheus.CounterVec
	RateLimitedTotal       prometheus.Counter
	CircuitBreakerState    *prometheus.GaugeVec

	registerer prometheus.Registerer
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RecommendationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommendations_total",
				Help: "Recommendation calls by the tier that produced the result and whether it was degraded.",
			},
			[]string{"tier", "degraded"},
		),
		RecommendationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recommendation_latency_seconds",
				Help:    "Recommendation pipeline latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"tier"},
		),
		RecommendationResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recommendation_results_count",
				Help:    "Number of documents returned per recommendation call.",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by outcome (personalized, unpersonalized, degraded, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 20},
			},
		),
		CachedFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "suggestion_cache_fallbacks_total",
				Help: "Suggestion responses served from the cache after a failed or degraded computation.",
			},
		),
		ActivitiesTrackedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "activities_tracked_total",
				Help: "Activity records appended by type.",
			},
			[]string{"type"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the per-user rate limiter.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		registerer: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RecommendationsTotal,
		m.RecommendationLatency,
		m.RecommendationResults,
		m.SearchQueriesTotal,
		m.SearchResultsCount,
		m.CachedFallbacksTotal,
		m.ActivitiesTrackedTotal,
		m.RateLimitedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// RecordRecommendation implements pipeline.Observer.
func (m *Metrics) RecordRecommendation(tier string, degraded bool, elapsed time.Duration) {
	m.RecommendationsTotal.WithLabelValues(tier, strconv.FormatBool(degraded)).Inc()
	m.RecommendationLatency.WithLabelValues(tier).Observe(elapsed.Seconds())
}

// RecordResults observes the size of a suggestion list.
func (m *Metrics) RecordResults(n int) {
	m.RecommendationResults.Observe(float64(n))
}

// RecordSearch counts one search call and its result size.
func (m *Metrics) RecordSearch(outcome string, results int) {
	m.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	m.SearchResultsCount.Observe(float64(results))
}

// RecordCachedFallback counts a response served from the suggestion cache.
func (m *Metrics) RecordCachedFallback() {
	m.CachedFallbacksTotal.Inc()
}

// RecordActivity implements activity.Counter.
func (m *Metrics) RecordActivity(activityType string) {
	m.ActivitiesTrackedTotal.WithLabelValues(activityType).Inc()
}

// SetBreakerState publishes a breaker's state by name.
func (m *Metrics) SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RegisterCacheStats exposes cumulative cache hit and miss counts read from
// stats at scrape time.
func (m *Metrics) RegisterCacheStats(stats func() (hits, misses int64)) {
	m.registerer.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of suggestion cache hits.",
		}, func() float64 {
			h, _ := stats()
			return float64(h)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of suggestion cache misses.",
		}, func() float64 {
			_, mi := stats()
			return float64(mi)
		}),
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
