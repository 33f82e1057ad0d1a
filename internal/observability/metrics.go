package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
		[]string{"room_id"},
	)

	WebSocketMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of events queued to WebSocket subscribers",
		},
		[]string{"room_id", "type"},
	)

	WebSocketMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Events dropped because a subscriber's send buffer was full",
		},
		[]string{"room_id"},
	)

	// Message store metrics
	MessageStoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_store_query_duration_seconds",
			Help:    "Message store latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_posted_total",
			Help: "Total number of messages persisted",
		},
	)

	// Ephemeral store metrics
	EphemeralStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_store_errors_total",
			Help: "Ephemeral store failures that were degraded to a fallback",
		},
		[]string{"operation"},
	)

	// Domain event metrics
	RoomEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_events_consumed_total",
			Help: "Room lifecycle events consumed from the broker",
		},
		[]string{"event", "result"},
	)
)
