// Package metrics exposes the Prometheus registry shared by the
// gateway, worker, and scheduler processes and the handful of vectors
// each component increments or observes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles a private Prometheus registry with the vectors the
// rest of the module records against. A private registry (rather than
// the global default) keeps test suites from leaking series across
// packages.
type Registry struct {
	reg *prometheus.Registry

	TasksProcessed   *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	TaskRetries      *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	LLMRequests      *prometheus.CounterVec
	LLMTokensUsed    *prometheus.CounterVec
	RAGMatchesFound  prometheus.Histogram
	SuppressionsUsed *prometheus.CounterVec
	DegradationLevel prometheus.Gauge
	WebhooksReceived *prometheus.CounterVec

	FeedbackSubmitted         *prometheus.CounterVec
	ConstraintExpirations     *prometheus.CounterVec
	ConstraintCount           *prometheus.GaugeVec
	FalsePositiveReduction    *prometheus.GaugeVec
}

// New wires a fresh registry and registers every vector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_tasks_processed_total",
			Help: "Review tasks completed, labeled by terminal status.",
		}, []string{"status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_task_duration_seconds",
			Help:    "Wall-clock time from task dequeue to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"status"}),
		TaskRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_task_retries_total",
			Help: "Task redeliveries, labeled by the queue name.",
		}, []string{"queue"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_queue_depth",
			Help: "Pending messages per durable consumer, sampled periodically.",
		}, []string{"queue"}),
		LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_llm_requests_total",
			Help: "LLM provider calls, labeled by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_llm_tokens_total",
			Help: "Tokens consumed per review, labeled by provider.",
		}, []string{"provider"}),
		RAGMatchesFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_rag_matches_found",
			Help:    "Knowledge store matches returned per file reviewed.",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		SuppressionsUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_suppressions_applied_total",
			Help: "Findings suppressed by a learned constraint, labeled by repo.",
		}, []string{"repo_id"}),
		DegradationLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aegis_degradation_level",
			Help: "Current fallback level as an ordinal: 0=FULL .. 5=EMERGENCY.",
		}),
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_webhooks_received_total",
			Help: "Inbound webhook deliveries, labeled by platform and event type.",
		}, []string{"platform", "event"}),
		FeedbackSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_feedback_submitted_total",
			Help: "Developer feedback submissions, labeled by action.",
		}, []string{"action"}),
		ConstraintExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_constraint_expirations_total",
			Help: "Learned constraints removed for having passed their expiry, labeled by repo.",
		}, []string{"repo_id"}),
		ConstraintCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_constraint_count",
			Help: "Live learned constraints held per repo.",
		}, []string{"repo_id"}),
		FalsePositiveReduction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_false_positive_reduction_ratio",
			Help: "Rejected-feedback share over the trailing 30-day window, per repo.",
		}, []string{"repo_id"}),
	}

	reg.MustRegister(
		r.TasksProcessed,
		r.TaskDuration,
		r.TaskRetries,
		r.QueueDepth,
		r.LLMRequests,
		r.LLMTokensUsed,
		r.RAGMatchesFound,
		r.SuppressionsUsed,
		r.DegradationLevel,
		r.WebhooksReceived,
		r.FeedbackSubmitted,
		r.ConstraintExpirations,
		r.ConstraintCount,
		r.FalsePositiveReduction,
	)

	return r
}

// Handler returns the HTTP handler the ingress gateway mounts at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// DegradationOrdinal maps a fallback level name to the ordinal the
// DegradationLevel gauge reports, so dashboards can alert on drift
// without parsing label strings.
func DegradationOrdinal(level string) float64 {
	switch level {
	case "FULL":
		return 0
	case "DEGRADED_RAG":
		return 1
	case "DEGRADED_RLHF":
		return 2
	case "DEGRADED_BOTH":
		return 3
	case "MINIMAL":
		return 4
	case "EMERGENCY":
		return 5
	default:
		return -1
	}
}
