// Package observability holds the prometheus instruments for the realtime
// gateway. All methods are safe on a nil *Metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Connections    prometheus.Gauge
	OnlineUsers    prometheus.Gauge
	LiveCalls      prometheus.Gauge
	InboundEvents  *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	DroppedClients prometheus.Counter
}

// NewMetrics registers the instruments with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections",
			Help: "Open websocket connections on this instance",
		}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_online_users",
			Help: "Users with at least one open connection",
		}),
		LiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "chat_call_sessions",
			Help: "Call sessions that are ringing or active",
		}),
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_inbound_events_total",
			Help: "Socket events received, by event and outcome",
		}, []string{"event", "outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Events written to connection send buffers, by event",
		}, []string{"event"}),
		DroppedClients: f.NewCounter(prometheus.CounterOpts{
			Name: "chat_slow_clients_dropped_total",
			Help: "Connections closed because their send buffer was full",
		}),
	}
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.Connections.Set(float64(n))
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.OnlineUsers.Set(float64(n))
}

func (m *Metrics) SetLiveCalls(n int) {
	if m == nil {
		return
	}
	m.LiveCalls.Set(float64(n))
}

func (m *Metrics) RecordInbound(event, outcome string) {
	if m == nil {
		return
	}
	m.InboundEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) RecordDelivery(event string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordDroppedClient() {
	if m == nil {
		return
	}
	m.DroppedClients.Inc()
}
