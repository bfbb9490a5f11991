package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Redirects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "redirect_requests_total",
		Help: "Redirect requests by outcome.",
	}, []string{"outcome"})
	Previews = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "preview_requests_total",
		Help: "Total preview requests.",
	})
	CacheHit = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hit_total",
		Help: "Cache hits.",
	}, []string{"kind"})
	CacheMiss = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_miss_total",
		Help: "Cache misses.",
	}, []string{"kind"})
	CacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_errors_total",
		Help: "Cache operations that failed.",
	}, []string{"op"})
	ClicksRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clicks_recorded_total",
		Help: "Click events persisted and counted.",
	})
	ClicksDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clicks_dropped_total",
		Help: "Clicks dropped due to full buffer or shutdown.",
	})
	ClickQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "click_queue_depth",
		Help: "Click events waiting for a worker.",
	})
	TelemetryRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_retries_total",
		Help: "Click recording attempts that were retried.",
	})
	TelemetryFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_failures_total",
		Help: "Click events abandoned after exhausting retries.",
	})
	TelemetryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_record_seconds",
		Help:    "Time spent recording one click event, retries included.",
		Buckets: prometheus.DefBuckets,
	})
	PasswordRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "password_attempts_limited_total",
		Help: "Password attempts rejected by the per-IP limiter.",
	})
)

func init() {
	prometheus.MustRegister(Redirects, Previews, CacheHit, CacheMiss, CacheErrors,
		ClicksRecorded, ClicksDropped, ClickQueueDepth,
		TelemetryRetries, TelemetryFailures, TelemetryDuration, PasswordRateLimited)
}

func Handler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
