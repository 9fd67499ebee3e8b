package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatroom_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_api_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// 实时订阅
	StreamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatroom_streams_active",
			Help: "Live subscriptions currently open",
		},
		[]string{"kind"},
	)

	StreamEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_stream_events_delivered_total",
			Help: "Change events delivered to subscribers",
		},
		[]string{"kind", "type"},
	)

	StreamEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_stream_events_dropped_total",
			Help: "Change events dropped as duplicates or after close",
		},
		[]string{"kind"},
	)

	// 消息
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_messages_sent_total",
			Help: "Messages appended to a log",
		},
		[]string{"scope", "payload"},
	)

	ChangePublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_change_publish_errors_total",
			Help: "Change events that failed to publish after commit",
		},
		[]string{"subject_kind"},
	)

	ConversationIndexUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_conversation_index_updates_total",
			Help: "Conversation index updates by result",
		},
		[]string{"result"},
	)

	NATSConnectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_nats_connection_events_total",
			Help: "NATS connection lifecycle events",
		},
		[]string{"event"},
	)

	// 对象存储
	BlobUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_blob_uploads_total",
			Help: "Blob uploads by result",
		},
		[]string{"folder", "result"},
	)

	BlobUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatroom_blob_upload_bytes",
			Help:    "Size of uploaded blobs",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatroom_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatroom_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordAPIRequest 记录一次 HTTP 请求
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
