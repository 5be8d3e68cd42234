package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogexec_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogexec_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogexec_turns_total",
		Help: "Total turns processed by the orchestrator, by terminal reply kind",
	}, []string{"outcome"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cogexec_turn_duration_seconds",
		Help:    "End-to-end HandleTurn duration",
		Buckets: prometheus.DefBuckets,
	})

	WallVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogexec_wall_verdicts_total",
		Help: "Validation Wall verdicts by kind and rejecting tier",
	}, []string{"kind", "tier"})

	VerifierVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogexec_verifier_verdicts_total",
		Help: "Verifier verdicts by status",
	}, []string{"status"})

	ExecutorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cogexec_executor_duration_seconds",
		Help:    "Sandbox Executor tool dispatch duration by tool",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"tool"})

	PlannerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cogexec_planner_requests_total",
		Help: "Planner invocations by result",
	}, []string{"result"})
)
