// Package metrics provides Prometheus metrics collection for the application.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Outbound call metrics
	CallsStartedTotal  *prometheus.CounterVec
	CallsFinishedTotal *prometheus.CounterVec
	CallDuration       prometheus.Histogram
	CallsInFlight      prometheus.Gauge
	CallCostDollars    prometheus.Histogram

	// Webhook ingestion metrics
	WebhooksReceivedTotal  *prometheus.CounterVec
	WebhookProcessDuration prometheus.Histogram

	// Enrichment metrics
	EnrichmentsTotal   *prometheus.CounterVec
	EnrichmentAttempts prometheus.Histogram

	// Result cache metrics
	CacheLookupsTotal *prometheus.CounterVec
	CacheEntries      prometheus.Gauge

	// Request pipeline metrics
	RequestTransitionsTotal  *prometheus.CounterVec
	RecommendationsGenerated *prometheus.CounterVec
	BookingsTotal            *prometheus.CounterVec

	// Vendor API metrics
	VendorAPICallsTotal *prometheus.CounterVec
	VendorAPIDuration   prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips prometheus.Counter

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBQueryDuration    *prometheus.HistogramVec
	DBQueryErrors      *prometheus.CounterVec

	// Errors tracks windowed error rates alongside the Prometheus counters,
	// for threshold alerting without a scrape round trip.
	Errors *ErrorRateTracker

	// Registry used for this metrics instance (nil means default registry)
	registry prometheus.Gatherer
}

// NewMetrics creates a new Metrics instance with all collectors registered.
func NewMetrics() *Metrics {
	m := newMetricsWithRegistry(prometheus.DefaultRegisterer)
	m.registry = prometheus.DefaultGatherer
	m.Errors = NewErrorRateTracker(DefaultErrorRateConfig())
	return m
}

// NewMetricsWithRegistry creates metrics using a custom registry (for testing).
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	m := newMetricsWithRegistry(reg)
	m.registry = reg
	m.Errors = NewErrorRateTracker(DefaultErrorRateConfig())
	return m
}

func newMetricsWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callbridge_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		// Outbound call metrics
		CallsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_calls_started_total",
				Help: "Total number of outbound calls dispatched by method",
			},
			[]string{"method"}, // "webhook", "polling"
		),
		CallsFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_calls_finished_total",
				Help: "Total number of outbound calls finished by status and method",
			},
			[]string{"status", "method"},
		),
		CallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_call_duration_minutes",
				Help:    "Duration of finished outbound calls in minutes",
				Buckets: []float64{0.5, 1, 2, 3, 5, 8, 10},
			},
		),
		CallsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callbridge_calls_in_flight",
				Help: "Number of outbound calls currently awaiting a terminal result",
			},
		),
		CallCostDollars: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_call_cost_dollars",
				Help:    "Per-call vendor cost in dollars",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
			},
		),

		// Webhook ingestion metrics
		WebhooksReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_webhooks_received_total",
				Help: "Total number of vendor webhooks received by status",
			},
			[]string{"status"}, // "valid", "invalid_signature", "parse_error"
		),
		WebhookProcessDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_webhook_process_duration_seconds",
				Help:    "Time taken to ack a webhook",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25},
			},
		),

		// Enrichment metrics
		EnrichmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_enrichments_total",
				Help: "Total number of enrichment runs by outcome",
			},
			[]string{"outcome"}, // "complete", "fetch_failed"
		),
		EnrichmentAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_enrichment_attempts",
				Help:    "Fetch attempts needed before an enrichment run finished",
				Buckets: []float64{1, 2, 3},
			},
		),

		// Result cache metrics
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_cache_lookups_total",
				Help: "Total number of result cache lookups by outcome",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callbridge_cache_entries",
				Help: "Number of live entries in the result cache",
			},
		),

		// Request pipeline metrics
		RequestTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_request_transitions_total",
				Help: "Total number of request state transitions by target state",
			},
			[]string{"status"},
		),
		RecommendationsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_recommendations_generated_total",
				Help: "Total number of recommendation runs by outcome",
			},
			[]string{"outcome"}, // "ranked", "empty"
		),
		BookingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_bookings_total",
				Help: "Total number of booking calls by outcome",
			},
			[]string{"outcome"}, // "confirmed", "unconfirmed"
		),

		// Vendor API metrics
		VendorAPICallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_vendor_api_calls_total",
				Help: "Total number of vendor API calls by operation and status",
			},
			[]string{"operation", "status"}, // status: "success", "failure", "circuit_open"
		),
		VendorAPIDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_vendor_api_call_duration_seconds",
				Help:    "Duration of vendor API calls",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "callbridge_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "callbridge_circuit_breaker_trips_total",
				Help: "Total number of times a circuit breaker has tripped",
			},
		),

		// Database metrics
		DBConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callbridge_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "callbridge_db_connections_in_use",
				Help: "Number of database connections currently in use",
			},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_db_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"}, // "select", "insert", "update", "delete"
		),
		DBQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_db_query_errors_total",
				Help: "Total number of database query errors",
			},
			[]string{"operation"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.HTTPRequestsTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(wrapped.statusCode),
		).Inc()

		m.HTTPRequestDuration.WithLabelValues(
			r.Method,
			path,
		).Observe(duration)

		if m.Errors != nil {
			m.Errors.RecordRequest()
			if wrapped.statusCode >= 500 {
				m.Errors.RecordError(ErrorCategoryHTTP)
			}
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// normalizePath normalizes URL paths to prevent high cardinality labels.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/live", "/metrics",
		"/vapi/webhook", "/vapi/cache/stats",
		"/providers/call", "/providers/batch-call", "/providers/call/status",
		"/requests":
		return path
	}

	if strings.HasPrefix(path, "/vapi/calls/") {
		return "/vapi/calls/:id"
	}
	if strings.HasPrefix(path, "/requests/") {
		if strings.HasSuffix(path, "/select") {
			return "/requests/:id/select"
		}
		return "/requests/:id"
	}

	return path
}

// Helper methods for recording specific events

// RecordCallStarted records an outbound call dispatch.
func (m *Metrics) RecordCallStarted(method string) {
	m.CallsStartedTotal.WithLabelValues(method).Inc()
	m.CallsInFlight.Inc()
}

// RecordCallFinished records a terminal call outcome.
func (m *Metrics) RecordCallFinished(status, method string, durationMinutes float64, cost *float64) {
	m.CallsFinishedTotal.WithLabelValues(status, method).Inc()
	m.CallsInFlight.Dec()
	if durationMinutes > 0 {
		m.CallDuration.Observe(durationMinutes)
	}
	if cost != nil && *cost > 0 {
		m.CallCostDollars.Observe(*cost)
	}
}

// RecordWebhook records a webhook receipt.
func (m *Metrics) RecordWebhook(status string, duration time.Duration) {
	m.WebhooksReceivedTotal.WithLabelValues(status).Inc()
	m.WebhookProcessDuration.Observe(duration.Seconds())
	if m.Errors != nil && status != "valid" {
		m.Errors.RecordError(ErrorCategoryValidation)
	}
}

// RecordEnrichment records a finished enrichment run.
func (m *Metrics) RecordEnrichment(outcome string, attempts int) {
	m.EnrichmentsTotal.WithLabelValues(outcome).Inc()
	m.EnrichmentAttempts.Observe(float64(attempts))
}

// RecordCacheLookup records a result cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// SetCacheEntries sets the live cache entry count.
func (m *Metrics) SetCacheEntries(count int) {
	m.CacheEntries.Set(float64(count))
}

// RecordTransition records a request state transition.
func (m *Metrics) RecordTransition(status string) {
	m.RequestTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordRecommendation records a recommendation run.
func (m *Metrics) RecordRecommendation(ranked int) {
	outcome := "ranked"
	if ranked == 0 {
		outcome = "empty"
	}
	m.RecommendationsGenerated.WithLabelValues(outcome).Inc()
}

// RecordBooking records a booking call outcome.
func (m *Metrics) RecordBooking(confirmed bool) {
	outcome := "unconfirmed"
	if confirmed {
		outcome = "confirmed"
	}
	m.BookingsTotal.WithLabelValues(outcome).Inc()
}

// RecordVendorAPICall records a vendor API call.
func (m *Metrics) RecordVendorAPICall(operation string, success bool, duration time.Duration) {
	status := "failure"
	if success {
		status = "success"
	}
	m.VendorAPICallsTotal.WithLabelValues(operation, status).Inc()
	m.VendorAPIDuration.Observe(duration.Seconds())
	if m.Errors != nil && !success {
		m.Errors.RecordError(ErrorCategoryExternal)
	}
}

// RecordCircuitOpen records a vendor call rejected by an open breaker.
func (m *Metrics) RecordCircuitOpen(operation string) {
	m.VendorAPICallsTotal.WithLabelValues(operation, "circuit_open").Inc()
	m.CircuitBreakerTrips.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state for a service.
// State: 0=closed, 1=half-open, 2=open
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// UpdateDBConnections updates database connection metrics.
func (m *Metrics) UpdateDBConnections(open, inUse int) {
	m.DBConnectionsOpen.Set(float64(open))
	m.DBConnectionsInUse.Set(float64(inUse))
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(operation).Inc()
		if m.Errors != nil {
			m.Errors.RecordError(ErrorCategoryDatabase)
		}
	}
}
