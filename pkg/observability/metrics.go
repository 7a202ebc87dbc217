// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the ausweis orchestrator.
package observability

import "github.com/prometheus/client_golang/prometheus"

// OracleBuckets defines histogram buckets suited for reasoning backend
// latencies, ranging from 100ms to 120s.
var OracleBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ausweis_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// SessionsTotal counts sessions by terminal status.
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_sessions_total",
			Help: "Sessions by terminal status",
		},
		[]string{"status"},
	)

	// SessionsActive tracks the number of sessions currently running or
	// queued for admission.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ausweis_sessions_active",
			Help: "Active sessions",
		},
	)

	// ProposalsTotal counts proposals requested from the reasoning
	// collaborator by result (call, final, error).
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_proposals_total",
			Help: "Proposals by result",
		},
		[]string{"oracle", "result"},
	)

	// ProposalLatency records how long the reasoning collaborator takes
	// to propose the next action.
	ProposalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ausweis_proposal_latency_seconds",
			Help:    "Proposal latency",
			Buckets: OracleBuckets,
		},
		[]string{"oracle"},
	)

	// DecisionsTotal counts trust verification decisions by outcome and
	// reason code.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ausweis_trust_decisions_total",
			Help: "Trust verification decisions",
		},
		[]string{"outcome", "reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		SessionsTotal,
		SessionsActive,
		ProposalsTotal,
		ProposalLatency,
		DecisionsTotal,
	)
}
