// Package metrics defines the Prometheus counters and gauges exposed by
// both gateway roles, replacing the teacher's hand-rolled atomic-counter
// text writer (agent/internal/transport/metrics.go) with
// prometheus/client_golang, per SPEC_FULL.md's Observability module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the gateway exports, registered against a
// dedicated prometheus.Registry rather than the global default so tests
// can construct independent instances.
type Registry struct {
	reg *prometheus.Registry

	PollTotal        *prometheus.CounterVec
	PollPublishTotal *prometheus.CounterVec
	BroadcastTotal   *prometheus.CounterVec
	RoutingTableSize *prometheus.GaugeVec
	ProxyRequests    *prometheus.CounterVec
	ProxyRetries     *prometheus.CounterVec
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		PollTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_poll_total",
			Help: "Poll cycles attempted, by role and result.",
		}, []string{"role", "result"}),
		PollPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_poll_publish_total",
			Help: "Poll cycles that published a changed configuration, by role.",
		}, []string{"role"}),
		BroadcastTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcast_total",
			Help: "Broadcaster announce attempts, by role and result.",
		}, []string{"role", "result"}),
		RoutingTableSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_routing_table_size",
			Help: "Number of entries in the current routing table, by role.",
		}, []string{"role"}),
		ProxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_proxy_requests_total",
			Help: "Proxied requests, by role and outcome.",
		}, []string{"role", "outcome"}),
		ProxyRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_proxy_retries_total",
			Help: "GOAWAY-triggered proxy retries, by role.",
		}, []string{"role"}),
	}
}

// Registerer exposes the underlying registry for a promhttp.Handler.
func (r *Registry) Registerer() *prometheus.Registry { return r.reg }
