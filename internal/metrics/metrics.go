// Package metrics exposes the Prometheus counters and histograms the
// debate engine emits, grounded on the teacher codebase's
// promauto.New*Vec + sync.Once registration pattern (e.g. its
// internal/services/concurrency_metrics.go).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	PhaseLatency *prometheus.HistogramVec
	RetryTotal   *prometheus.CounterVec
	TimeoutTotal *prometheus.CounterVec
	TokensTotal  *prometheus.CounterVec

	SessionsStarted   prometheus.Counter
	SessionsCompleted *prometheus.CounterVec // labeled by terminal status

	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
	EventsDuplicate prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
)

// Init registers all metrics exactly once. Safe to call from multiple
// packages' init paths.
func Init() {
	once.Do(func() {
		PhaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sreforge_phase_latency_ms",
			Help:    "Latency of a debate phase in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 12),
		}, []string{"phase"})

		RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sreforge_retry_total",
			Help: "Total LLM Gateway retries issued, by phase.",
		}, []string{"phase"})

		TimeoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sreforge_timeout_total",
			Help: "Total LLM Gateway timeouts observed, by phase.",
		}, []string{"phase"})

		TokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sreforge_tokens_total",
			Help: "Total approximate tokens consumed, by kind (prompt/completion).",
		}, []string{"kind"})

		SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
			Name: "sreforge_sessions_started_total",
			Help: "Total debate sessions started.",
		})

		SessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sreforge_sessions_completed_total",
			Help: "Total debate sessions reaching a terminal status.",
		}, []string{"status"})

		EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
			Name: "sreforge_events_published_total",
			Help: "Total events accepted by the dispatcher.",
		})

		EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
			Name: "sreforge_events_dropped_total",
			Help: "Total events dropped due to a slow subscriber (stream_lag).",
		})

		EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
			Name: "sreforge_events_duplicate_total",
			Help: "Total events suppressed by event_id de-duplication.",
		})

		CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sreforge_llm_circuit_breaker_state",
			Help: "LLM Gateway circuit breaker state per model (0=closed,1=half_open,2=open).",
		}, []string{"model_id"})
	})
}
