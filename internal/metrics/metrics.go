// Package metrics defines the relay's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Relay groups the relay's metrics. A nil *Relay records nothing, so
// components can run without a registry in tests.
type Relay struct {
	Connections     prometheus.Gauge
	Rooms           prometheus.Gauge
	Messages        prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDropped  prometheus.Counter
	EventsDropped   prometheus.Counter
}

// NewRelay creates and registers the relay metrics on reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of live connections",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_rooms",
			Help: "Number of rooms with at least one member",
		}),
		Messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Total number of messages accepted and broadcast",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_persist_failures_total",
			Help: "Total number of message records the store failed to persist",
		}),
		PersistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_persist_dropped_total",
			Help: "Total number of message records never handed to the store",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total number of outbound events dropped because a client outbox was full",
		}),
	}

	reg.MustRegister(m.Connections, m.Rooms, m.Messages, m.PersistFailures, m.PersistDropped, m.EventsDropped)
	return m
}

// SetConnections records the number of live connections.
func (m *Relay) SetConnections(n int) {
	if m != nil {
		m.Connections.Set(float64(n))
	}
}

// SetRooms records the number of registered rooms.
func (m *Relay) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

// MessageAccepted counts a relayed message.
func (m *Relay) MessageAccepted() {
	if m != nil {
		m.Messages.Inc()
	}
}

// PersistFailed counts a store write failure.
func (m *Relay) PersistFailed() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

// PersistSkipped counts a record that was never written.
func (m *Relay) PersistSkipped() {
	if m != nil {
		m.PersistDropped.Inc()
	}
}

// EventDropped counts an outbound event lost to a full outbox.
func (m *Relay) EventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}
