// Package metrics exposes the hub's and the delivery engine's internal
// counters as Prometheus instrumentation.
//
// Grounded in chaitanyaphalak-go-mcast's dependency on
// github.com/prometheus/common (used there only incidentally, for its
// deprecated logging shim) and 0DukePan-multi_rooms_chat_back's direct
// dependency on github.com/prometheus/client_golang for real chat-server
// metrics; this package uses the latter, actively maintained module.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the counters and gauges a single Hub reports. Each Hub
// owns a private prometheus.Registry, never the global default registry,
// so multiple hubs can coexist in one process: tests routinely construct
// several independent hubs and must not collide on metric names.
type Registry struct {
	reg *prometheus.Registry

	Connections        prometheus.Gauge
	Rooms              prometheus.Gauge
	MessagesBroadcast  *prometheus.CounterVec
	DeliveryBufferSize *prometheus.GaugeVec
	SessionsClosed     *prometheus.CounterVec
}

// New constructs a Registry with all metrics registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vectorchat",
			Name:      "connections",
			Help:      "Number of currently connected sessions.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vectorchat",
			Name:      "rooms",
			Help:      "Number of rooms currently tracked by the hub.",
		}),
		MessagesBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vectorchat",
			Name:      "messages_broadcast_total",
			Help:      "Chat messages broadcast, by room.",
		}, []string{"room_id"}),
		DeliveryBufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vectorchat",
			Name:      "delivery_buffer_size",
			Help:      "Current causal-delivery buffer size, by participant.",
		}, []string{"client_id"}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vectorchat",
			Name:      "sessions_closed_total",
			Help:      "Sessions torn down, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(r.Connections, r.Rooms, r.MessagesBroadcast, r.DeliveryBufferSize, r.SessionsClosed)
	return r
}

// Gatherer exposes the private registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
