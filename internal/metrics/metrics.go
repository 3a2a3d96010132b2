// Package metrics holds the Prometheus collectors for the reservation server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reserve_connections_active",
			Help: "Number of open websocket connections",
		},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserve_messages_total",
			Help: "Websocket messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	MessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserve_messages_dropped_total",
			Help: "Outbound messages dropped because a client send buffer was full",
		},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reserve_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reserve_queue_length",
			Help: "Number of connections waiting for access",
		},
	)
)

// Inbound counts one message received from a client.
func Inbound(msgType string) {
	MessagesTotal.WithLabelValues("in", msgType).Inc()
}

// Outbound counts one message queued for a client.
func Outbound(msgType string) {
	MessagesTotal.WithLabelValues("out", msgType).Inc()
}
