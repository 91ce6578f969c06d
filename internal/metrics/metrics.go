// Package metrics exposes Prometheus collectors for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// MessagesSent counts messages persisted via the send endpoint.
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatwire_messages_sent_total",
		Help: "Total number of messages persisted.",
	})

	// LivePushes counts messages pushed to a connected recipient.
	LivePushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatwire_live_pushes_total",
		Help: "Total number of messages delivered over a live connection.",
	})

	// PushesMissed counts sends whose recipient had no live connection.
	PushesMissed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatwire_pushes_missed_total",
		Help: "Total number of sends with no connected recipient.",
	})

	// PushesDropped counts pushes dropped because the recipient's send
	// queue was full.
	PushesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatwire_pushes_dropped_total",
		Help: "Total number of pushes dropped on a slow connection.",
	})

	// ConnectionsActive tracks currently open websocket connections,
	// identified or anonymous.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatwire_connections_active",
		Help: "Currently open websocket connections.",
	})

	// UsersOnline tracks distinct identified users with a live connection.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatwire_users_online",
		Help: "Distinct users currently registered as online.",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesSent,
		LivePushes,
		PushesMissed,
		PushesDropped,
		ConnectionsActive,
		UsersOnline,
	)
}
