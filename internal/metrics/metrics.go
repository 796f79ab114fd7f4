// Package metrics exposes Parley's Prometheus collectors.
//
// Collectors live on a private registry so tests can construct isolated
// instances without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles all server collectors.
type Metrics struct {
	reg *prometheus.Registry

	// ConnectionsOpen tracks currently-live WebSocket connections.
	ConnectionsOpen prometheus.Gauge

	// EventsTotal counts inbound envelopes by type (post-validation).
	EventsTotal *prometheus.CounterVec

	// MessagesDelivered counts messages enqueued to a live target connection.
	MessagesDelivered prometheus.Counter
	// MessagesPersisted counts messages written to the message store.
	MessagesPersisted prometheus.Counter
	// MessagesDropped counts sends with no deliverable outcome, by reason.
	MessagesDropped *prometheus.CounterVec

	// StoreFailures counts collaborator store errors by operation.
	StoreFailures *prometheus.CounterVec
}

// New constructs a Metrics instance on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "ws",
			Name:      "connections_open",
			Help:      "Currently open WebSocket connections.",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "ws",
			Name:      "events_total",
			Help:      "Inbound envelopes by type.",
		}, []string{"type"}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "router",
			Name:      "messages_delivered_total",
			Help:      "Messages enqueued to a live target connection.",
		}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "router",
			Name:      "messages_persisted_total",
			Help:      "Messages written to the message store.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "router",
			Name:      "messages_dropped_total",
			Help:      "Sends that produced no delivery, by reason.",
		}, []string{"reason"}),
		StoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Store operation failures by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.ConnectionsOpen,
		m.EventsTotal,
		m.MessagesDelivered,
		m.MessagesPersisted,
		m.MessagesDropped,
		m.StoreFailures,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
