// Package metrics provides the Prometheus collectors for gateway
// observability. Metrics are optional everywhere they are consumed: a nil
// *Metrics is valid and turns every recording call into a no-op, so core
// packages never need to guard their instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	PublishedTotal    prometheus.Counter
	BrokerReceived    prometheus.Counter
	DeliveriesTotal   prometheus.Counter
	DeliveryErrors    prometheus.Counter
}

// New creates the gateway collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsgateway_active_connections",
			Help: "Number of currently registered client connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsgateway_connections_total",
			Help: "Total client connections accepted since start.",
		}),
		PublishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsgateway_published_total",
			Help: "Messages published outward to the broker channel.",
		}),
		BrokerReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsgateway_broker_received_total",
			Help: "Messages drained from the broker subscription.",
		}),
		DeliveriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsgateway_deliveries_total",
			Help: "Delivery attempts to client connections.",
		}),
		DeliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsgateway_delivery_errors_total",
			Help: "Deliveries that failed for a single connection.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.PublishedTotal,
		m.BrokerReceived,
		m.DeliveriesTotal,
		m.DeliveryErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ConnectionOpened records a newly registered connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
	m.ConnectionsTotal.Inc()
}

// ConnectionClosed records a deregistered connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

// Published records one message forwarded to the broker.
func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.PublishedTotal.Inc()
}

// Received records one message drained from the broker subscription.
func (m *Metrics) Received() {
	if m == nil {
		return
	}
	m.BrokerReceived.Inc()
}

// Delivered records one delivery attempt to a connection.
func (m *Metrics) Delivered() {
	if m == nil {
		return
	}
	m.DeliveriesTotal.Inc()
}

// DeliveryFailed records one isolated per-connection delivery failure.
func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.DeliveryErrors.Inc()
}
