package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the quiz cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records quiz cache lookups.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationUpsert records quiz cache write-backs.
	CacheOperationUpsert CacheOperation = "upsert"
)

// CacheResult captures the result of a cache operation.
type CacheResult string

const (
	// CacheResultHit indicates a lookup found a valid entry.
	CacheResultHit CacheResult = "hit"
	// CacheResultMiss indicates a lookup found nothing usable, including expired entries.
	CacheResultMiss CacheResult = "miss"
	// CacheResultStored indicates a write-back succeeded.
	CacheResultStored CacheResult = "stored"
	// CacheResultError indicates the backend failed and the call degraded.
	CacheResultError CacheResult = "error"
)

// UpstreamResult captures the result of a provider call.
type UpstreamResult string

const (
	UpstreamResultOK     UpstreamResult = "ok"
	UpstreamResultStatus UpstreamResult = "bad_status"
	UpstreamResultError  UpstreamResult = "error"
)

// Waitlist signup outcomes.
const (
	WaitlistAccepted    = "accepted"
	WaitlistDuplicate   = "duplicate"
	WaitlistInvalid     = "invalid"
	WaitlistRateLimited = "rate_limited"
	WaitlistError       = "error"
)

// Recorder publishes Prometheus metrics for the service.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec

	waitlistSignups *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests served, by route pattern and status.",
	}, []string{"route", "status_code"})

	httpLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "momentum",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for HTTP requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Quiz cache operations executed by the resolver.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "momentum",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for quiz cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"operation", "result"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Requests sent to the trivia provider.",
	}, []string{"endpoint", "result"})

	upstreamLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "momentum",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for trivia provider requests.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint", "result"})

	waitlistSignups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "momentum",
		Subsystem: "waitlist",
		Name:      "signups_total",
		Help:      "Waitlist signup attempts by outcome.",
	}, []string{"result"})

	reg.MustRegister(
		httpRequests, httpLatency,
		cacheOperations, cacheLatency,
		upstreamRequests, upstreamLatency,
		waitlistSignups,
	)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:         reg,
		handler:          handler,
		httpRequests:     httpRequests,
		httpLatency:      httpLatency,
		cacheOperations:  cacheOperations,
		cacheLatency:     cacheLatency,
		upstreamRequests: upstreamRequests,
		upstreamLatency:  upstreamLatency,
		waitlistSignups:  waitlistSignups,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveHTTP records a completed request. route is the mux pattern, not the
// raw path, so quiz identifiers do not explode label cardinality.
func (r *Recorder) ObserveHTTP(route string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	routeLabel := normalizeLabel(route)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	r.httpRequests.WithLabelValues(routeLabel, statusLabel).Inc()
	r.httpLatency.WithLabelValues(routeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of a quiz cache operation.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheResult, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationGet)
	}
	resLabel := string(result)
	if resLabel == "" {
		resLabel = string(CacheResultError)
	}
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveUpstream records a provider request.
func (r *Recorder) ObserveUpstream(endpoint string, result UpstreamResult, duration time.Duration) {
	if r == nil {
		return
	}
	endpointLabel := normalizeLabel(endpoint)
	resLabel := normalizeLabel(string(result))
	r.upstreamRequests.WithLabelValues(endpointLabel, resLabel).Inc()
	r.upstreamLatency.WithLabelValues(endpointLabel, resLabel).Observe(duration.Seconds())
}

// ObserveWaitlist counts a waitlist signup attempt.
func (r *Recorder) ObserveWaitlist(result string) {
	if r == nil {
		return
	}
	r.waitlistSignups.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
