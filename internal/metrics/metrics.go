package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatrelay"

// Metrics groups the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections   prometheus.Gauge
	OnlineUsers   prometheus.Gauge
	Routed        *prometheus.CounterVec
	RoutingMisses *prometheus.CounterVec
	Dropped       prometheus.Counter
	Superseded    prometheus.Counter
	AuthFailures  prometheus.Counter
	Pushes        *prometheus.CounterVec
	RateLimited   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open authenticated WebSocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users present in the presence map.",
		}),
		Routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_routed_total",
			Help:      "Events delivered to a live connection, by event.",
		}, []string{"event"}),
		RoutingMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_misses_total",
			Help:      "Events addressed to users without a live connection, by event.",
		}, []string{"event"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the recipient queue was full.",
		}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_superseded_total",
			Help:      "Connections replaced in the presence map by a newer login.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected connection attempts.",
		}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_requests_total",
			Help:      "Externally triggered pushes, by source.",
		}, []string{"source"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rate_limited_total",
			Help:      "Inbound events rejected by the per-connection limiter.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.OnlineUsers,
			m.Routed,
			m.RoutingMisses,
			m.Dropped,
			m.Superseded,
			m.AuthFailures,
			m.Pushes,
			m.RateLimited,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) SetOnline(n int) {
	if m != nil {
		m.OnlineUsers.Set(float64(n))
	}
}

func (m *Metrics) EventRouted(event string) {
	if m != nil {
		m.Routed.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) RoutingMiss(event string) {
	if m != nil {
		m.RoutingMisses.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) ConnectionSuperseded() {
	if m != nil {
		m.Superseded.Inc()
	}
}

func (m *Metrics) AuthFailed() {
	if m != nil {
		m.AuthFailures.Inc()
	}
}

func (m *Metrics) PushRequested(source string) {
	if m != nil {
		m.Pushes.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) InboundRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}
