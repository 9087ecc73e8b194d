package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one Hub. Each Hub owns its
// own prometheus.Registry so several hubs can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	registeredConnections prometheus.Gauge
	activeSessions        prometheus.Gauge
	messagesEchoed        prometheus.Counter
	messagesThrottled     prometheus.Counter
	broadcastTicks        prometheus.Counter
	broadcastDeliveries   *prometheus.CounterVec
}

func newMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registeredConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streams_registered_connections",
			Help: "Number of connections currently receiving the timestamp broadcast",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streams_sessions_active",
			Help: "Number of open SockJS sessions",
		}),
		messagesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streams_messages_echoed_total",
			Help: "Total number of inbound messages echoed back to their sender",
		}),
		messagesThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streams_messages_throttled_total",
			Help: "Total number of inbound messages discarded by the rate limiter",
		}),
		broadcastTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streams_broadcast_ticks_total",
			Help: "Total number of broadcast timer passes",
		}),
		broadcastDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streams_broadcast_deliveries_total",
			Help: "Total number of per-connection timestamp deliveries by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.registeredConnections,
		m.activeSessions,
		m.messagesEchoed,
		m.messagesThrottled,
		m.broadcastTicks,
		m.broadcastDeliveries,
	)
	return m
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
