// Package telemetry exposes the service's prometheus collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_messages_recorded_total",
		Help: "Messages accepted by the chat state engine.",
	})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duochat_events_delivered_total",
		Help: "Realtime events written to websocket clients, by event name.",
	}, []string{"event"})

	PushesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_pushes_sent_total",
		Help: "Push notifications handed to an external transport.",
	})

	PushesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duochat_pushes_failed_total",
		Help: "Push notification dispatch failures (logged and swallowed).",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duochat_ws_connections",
		Help: "Live websocket connections.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
