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

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	UsersRegistered         prometheus.Counter
	RequestsProposed        prometheus.Counter
	RequestTransitions      *prometheus.CounterVec
	MessagesSent            prometheus.Counter
	RatingsSubmitted        *prometheus.CounterVec
	RatingRecomputeFailures prometheus.Counter
	RatingRecomputeDuration prometheus.Histogram

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(register)
	return metrics
}

func register() {
	metrics = &Metrics{
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

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"scope"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
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

		UsersRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "users_registered_total",
				Help: "Total number of registered users",
			},
		),
		RequestsProposed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "exchange_requests_proposed_total",
				Help: "Total number of exchange requests proposed",
			},
		),
		RequestTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_request_transitions_total",
				Help: "Total number of exchange request status transitions",
			},
			[]string{"from", "to"},
		),
		MessagesSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of chat messages sent",
			},
		),
		RatingsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratings_submitted_total",
				Help: "Total number of ratings submitted",
			},
			[]string{"stars"},
		),
		RatingRecomputeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rating_recompute_failures_total",
				Help: "Rating aggregate recomputations that failed after a rating was stored",
			},
		),
		RatingRecomputeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rating_recompute_duration_seconds",
				Help:    "Rating aggregate recomputation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"name"},
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
		duration := time.Since(start).Seconds()

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// RecordRateLimitHit records a rate limit hit
func RecordRateLimitHit(scope string) {
	Get().RateLimitHits.WithLabelValues(scope).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Get().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Get().CacheMisses.WithLabelValues(cacheType).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}

func RecordUserRegistered() {
	Get().UsersRegistered.Inc()
}

func RecordRequestProposed() {
	Get().RequestsProposed.Inc()
}

func RecordRequestTransition(from, to string) {
	Get().RequestTransitions.WithLabelValues(from, to).Inc()
}

func RecordMessageSent() {
	Get().MessagesSent.Inc()
}

// RecordRatingSubmitted records a stored rating by its star value
func RecordRatingSubmitted(stars int) {
	Get().RatingsSubmitted.WithLabelValues(strconv.Itoa(stars)).Inc()
}

// RecordRecompute records the duration of an aggregate recomputation and
// counts it as a failure when err is set.
func RecordRecompute(duration time.Duration, err error) {
	m := Get()
	m.RatingRecomputeDuration.Observe(duration.Seconds())
	if err != nil {
		m.RatingRecomputeFailures.Inc()
	}
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(name string, state float64) {
	Get().CircuitBreakerState.WithLabelValues(name).Set(state)
}
