package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vkg_build_info",
			Help: "Build information of the VKG query service",
		},
		[]string{"version"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkg_pipeline_runs_total",
			Help: "Total number of pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vkg_pipeline_step_duration_seconds",
			Help:    "Duration of individual pipeline steps in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"step", "status"},
	)

	PipelineAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vkg_pipeline_attempts",
			Help:    "Generation attempts used per pipeline run",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	PipelineFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkg_pipeline_failures_total",
			Help: "Total number of pipeline faults by kind",
		},
		[]string{"kind"},
	)

	SchemaCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkg_schema_cache_lookups_total",
			Help: "Schema context cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vkg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vkg_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Cache tiers and lookup results.
const (
	TierLocal  = "local"
	TierRemote = "remote"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// ObserveStep records the duration of one pipeline step.
func ObserveStep(step, status string, d time.Duration) {
	PipelineStepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

// ObserveCacheLookup records one cache lookup against a tier.
func ObserveCacheLookup(tier, result string) {
	SchemaCacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records HTTP request counts and latencies.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// ServeMux sets the matched pattern on r; raw paths would explode label cardinality.
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
