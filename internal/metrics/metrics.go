package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "postpilot"

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

// Background job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job execution time distribution",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"type"},
	)

	JobsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being executed",
		},
		[]string{"type"},
	)
)

// Entitlement metrics
var (
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "Authorization gate outcomes",
		},
		[]string{"outcome", "reason"}, // outcome: allow|deny|error
	)

	UsageConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_consumed_total",
			Help:      "Metered units consumed, by effective tier",
		},
		[]string{"tier"},
	)

	UsageStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_store_errors_total",
			Help:      "Usage store operations that failed",
		},
		[]string{"backend"},
	)

	UsageRollovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_rollovers_total",
			Help:      "Counters reset into a new monthly cycle",
		},
	)
)

// Billing and generation metrics
var (
	AIAPICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_api_calls_total",
			Help:      "Total number of AI API calls",
		},
		[]string{"status"},
	)

	BillingWebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_webhook_events_total",
			Help:      "Stripe webhook events received",
		},
		[]string{"type", "result"}, // result: applied|duplicate|ignored|error
	)
)

// AI cost tracking metrics (aggregate totals - no user label to avoid cardinality)
var (
	AITokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Total AI tokens consumed",
		},
		[]string{"type"}, // "input" or "output"
	)

	AICostCentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_cost_cents_total",
			Help:      "Total AI cost in cents",
		},
	)
)
