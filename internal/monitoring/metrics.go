package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Usage decision outcomes
const (
	OutcomeAllowed  = "allowed"
	OutcomeDenied   = "denied"
	OutcomePro      = "pro"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Usage gate metrics
	UsageDecisions  *prometheus.CounterVec
	UsageLockWait   *prometheus.HistogramVec
	UsageCASRetries prometheus.Counter

	// LLM provider metrics
	LLMLatency  *prometheus.HistogramVec
	LLMRequests *prometheus.CounterVec
	LLMErrors   *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	GenerationsTotal *prometheus.CounterVec
	SharesCreated    prometheus.Counter
	SharesPurged     prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		UsageDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "usage_gate_decisions_total",
				Help: "Usage gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		UsageLockWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "usage_gate_lock_wait_seconds",
				Help:    "Time spent acquiring the per-user usage lock",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
			},
			[]string{"mode"},
		),
		UsageCASRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "usage_gate_cas_retries_total",
				Help: "Compare-and-swap attempts lost to a concurrent writer",
			},
		),

		LLMLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "LLM provider response latency in seconds",
				Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of requests to the LLM provider",
			},
			[]string{"provider", "model", "status"},
		),
		LLMErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_errors_total",
				Help: "Total number of errors from the LLM provider",
			},
			[]string{"provider", "model", "error_type"},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit rejections",
			},
			[]string{"route"},
		),

		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		GenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generations_total",
				Help: "Generation requests by status",
			},
			[]string{"status"},
		),
		SharesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shares_created_total",
				Help: "Total number of share links created",
			},
		),
		SharesPurged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shares_purged_total",
				Help: "Total number of expired shares deleted",
			},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"provider"},
		),
	}
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordUsageDecision counts one gate outcome
func RecordUsageDecision(outcome string) {
	Get().UsageDecisions.WithLabelValues(outcome).Inc()
}

// RecordUsageLockWait records how long a gate waited on its lock
func RecordUsageLockWait(mode string, d time.Duration) {
	Get().UsageLockWait.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordUsageCASRetry counts a lost compare-and-swap
func RecordUsageCASRetry() {
	Get().UsageCASRetries.Inc()
}

// RecordLLMLatency records provider latency
func RecordLLMLatency(provider, model string, duration time.Duration) {
	Get().LLMLatency.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordLLMRequest records a provider request
func RecordLLMRequest(provider, model, status string) {
	Get().LLMRequests.WithLabelValues(provider, model, status).Inc()
}

// RecordLLMError records a provider error
func RecordLLMError(provider, model, errorType string) {
	Get().LLMErrors.WithLabelValues(provider, model, errorType).Inc()
}

// RecordRateLimitHit records a rate limit rejection
func RecordRateLimitHit(route string) {
	Get().RateLimitHits.WithLabelValues(route).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int32) {
	m := Get()
	m.DBConnectionsActive.Set(float64(active))
	m.DBConnectionsIdle.Set(float64(idle))
}

// RecordGeneration counts a finished generation request
func RecordGeneration(status string) {
	Get().GenerationsTotal.WithLabelValues(status).Inc()
}

// RecordShareCreated counts a new share link
func RecordShareCreated() {
	Get().SharesCreated.Inc()
}

// RecordSharesPurged counts deleted shares
func RecordSharesPurged(n int64) {
	Get().SharesPurged.Add(float64(n))
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(provider string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(provider).Set(state)
}
