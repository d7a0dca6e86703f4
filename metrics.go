package apiclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exports Prometheus metrics for the request lifecycle,
// cache strategy outcomes and the resilience layers. Safe for concurrent
// use; a nil collector is a no-op.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheFallbacks *prometheus.CounterVec
	cacheSize      *prometheus.GaugeVec

	coalescedTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	rateLimitedTotal    *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registerer prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_requests_total",
				Help: "Total number of requests executed",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apiclient_request_duration_seconds",
				Help:    "Duration of requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apiclient_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		cacheHits: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "endpoint", "strategy"},
		),
		cacheMisses: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "endpoint", "strategy"},
		),
		cacheFallbacks: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_cache_fallbacks_total",
				Help: "Total number of network-first fallbacks served from cache",
			},
			[]string{"method", "endpoint"},
		),
		cacheSize: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apiclient_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		coalescedTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_coalesced_requests_total",
				Help: "Total number of requests served by an identical in-flight request",
			},
			[]string{"method", "endpoint"},
		),
		circuitBreakerState: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apiclient_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		rateLimitedTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_rate_limited_total",
				Help: "Total number of requests denied by the client-side rate limiter",
			},
			[]string{"method", "endpoint"},
		),
		errorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiclient_errors_total",
				Help: "Total number of error envelopes returned",
			},
			[]string{"code", "method", "endpoint"},
		),
		registerer: registerer,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments the cache hit counter for a strategy.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string, strategy CacheStrategy) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method, endpoint, string(strategy)).Inc()
}

// RecordCacheMiss increments the cache miss counter for a strategy.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string, strategy CacheStrategy) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method, endpoint, string(strategy)).Inc()
}

// RecordCacheFallback counts a network-first failure served from cache.
func (mc *MetricsCollector) RecordCacheFallback(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheFallbacks.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheSize sets the cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordCoalescedRequest counts a request resolved by deduplication.
func (mc *MetricsCollector) RecordCoalescedRequest(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.coalescedTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordRateLimited counts a request denied by the rate limiter.
func (mc *MetricsCollector) RecordRateLimited(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.rateLimitedTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordError increments the error counter by code.
func (mc *MetricsCollector) RecordError(code, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(code, method, endpoint).Inc()
}
