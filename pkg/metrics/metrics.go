package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tachyontex"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	CacheResult = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_result_total", Help: "Cache probe outcomes by cache and result."},
		[]string{"cache", "result"}, // cache: pdf|format, result: hit|miss
	)

	CompileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Compile latency in seconds, labeled by final state.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"state"}, // completed|cache_hit|failed
	)

	CompileOverloaded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "compile_overloaded_total", Help: "Number of compile requests rejected due to backpressure."},
	)

	SingleflightWaiters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: namespace, Name: "singleflight_waiters", Help: "Current number of requests coalesced behind an in-flight build, by cache."},
		[]string{"cache"},
	)

	BlobStoreBytesUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "blobstore_bytes_used", Help: "Bytes currently held in the process-wide blob store."},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by outcome."},
		[]string{"outcome"}, // delivered|retried|suppressed|exhausted
	)
)

// RegisterCollectors registers every collector this service exposes on the
// given Prometheus registerer as a single entry point.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		RateLimitAllowed,
		RateLimitRejected,
		CacheResult,
		CompileDuration,
		CompileOverloaded,
		SingleflightWaiters,
		BlobStoreBytesUsed,
		WebhookDeliveries,
	)
}

// OrchestratorSink adapts CompileDuration to orchestrator.MetricsSink
// without internal/orchestrator needing to import prometheus directly.
type OrchestratorSink struct{}

// ObserveCompile records one compile's outcome against CompileDuration,
// bucketed by final state.
func (OrchestratorSink) ObserveCompile(cacheHit bool, durationMs int64, err error) {
	state := "completed"
	switch {
	case err == nil && cacheHit:
		state = "cache_hit"
	case err != nil:
		state = "failed"
	}
	CompileDuration.WithLabelValues(state).Observe(float64(durationMs) / 1000.0)
}
