// Package metrics holds the process-wide Prometheus collectors shared
// across beemsg, rpcserver, and the supervisor's periodic tasks.
package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
)

// GRPCMetrics instruments every rpcserver unary/stream method individually
// (request counts, latencies, in-flight, per gRPC status code) — installed
// as an interceptor in rpcserver.NewGRPCServer. Reuses the grpc-prometheus
// package's own DefaultServerMetrics, which its init() already registers;
// registering a second ServerMetrics instance would collide on the same
// metric names.
var GRPCMetrics = grpcprometheus.DefaultServerMetrics

var (
	BeemsgAuthFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "beemsg_auth_failures_total",
		Help: "BeeMsg frames rejected for an invalid or missing auth hash.",
	})

	BeemsgRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beemsg_requests_total",
		Help: "BeeMsg requests handled, labeled by message type.",
	}, []string{"msg_type"})

	QuotaCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "quota_cycle_duration_seconds",
		Help: "Duration of a full quota pull/persist/compare/push cycle.",
	})

	TopologyTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "topology_tick_duration_seconds",
		Help: "Duration of one topology liveness-sweep tick.",
	})
)

func init() {
	prometheus.MustRegister(BeemsgAuthFailuresTotal, BeemsgRequestsTotal, QuotaCycleDuration, TopologyTickDuration)
}
