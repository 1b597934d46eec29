package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestDuration tracks HTTP request latency per route.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIRequestsTotal counts HTTP requests per route and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_api_requests_total",
		Help: "Total HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heimdall_api_active_connections",
		Help: "Number of HTTP requests currently being served.",
	})

	// AuthOutcomesTotal counts authentication outcomes. Labels stay coarse
	// on purpose: internal denial reasons never become a metric dimension.
	AuthOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_auth_outcomes_total",
		Help: "Authentication outcomes (ok, operator, unauthorized, missing, error).",
	}, []string{"outcome"})

	// RateLimitRejectionsTotal counts requests rejected by the rate limiter.
	RateLimitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_ratelimit_rejections_total",
		Help: "Requests rejected with 429.",
	})

	// RotationsTotal counts credential rotations by result.
	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_credential_rotations_total",
		Help: "Credential rotations (committed, conflict, failed).",
	}, []string{"result"})

	// LeaderStatus is 1 while this instance holds the archiver lease.
	LeaderStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "heimdall_leader_status",
		Help: "Leadership status per instance (1 = leader).",
	}, []string{"instance_id"})

	// LeaderTransitionsTotal counts leadership acquisitions and losses.
	LeaderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_leader_transitions_total",
		Help: "Leadership transitions per instance.",
	}, []string{"instance_id", "transition"})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
