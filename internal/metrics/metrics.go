// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered WebSocket connections",
		},
	)

	ConnectedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connected_users",
			Help: "Current number of users with at least one local connection",
		},
	)

	ConnectionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_rejections_total",
			Help: "Total number of rejected connection attempts",
		},
		[]string{"reason"}, // limit, auth, rate_limit
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket frames received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Router Metrics
	RouterDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_deliveries_total",
			Help: "Message delivery attempts by conversation type and outcome",
		},
		[]string{"conversation_type", "result"}, // delivered, no_local_sockets, unacknowledged
	)

	RouterAckTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "router_ack_timeouts_total",
			Help: "Total number of per-socket acknowledgment timeouts",
		},
	)

	RouterAckLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "router_first_ack_seconds",
			Help:    "Time from emit to the first successful client acknowledgment",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		},
	)

	ReadAggregatesCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "router_read_aggregates_total",
			Help: "Total number of group messages read by every member",
		},
	)

	// Bus Metrics
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Envelopes published to the message bus",
		},
		[]string{"type", "result"}, // result: success, error
	)

	BusReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_received_total",
			Help: "Envelopes received from the message bus",
		},
		[]string{"type"},
	)

	BusDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_decode_errors_total",
			Help: "Bus payloads that could not be decoded",
		},
	)

	// Presence Metrics
	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_transitions_total",
			Help: "Presence status transitions by target status",
		},
		[]string{"status"},
	)

	PresenceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_queue_depth",
			Help: "Presence updates waiting to be persisted",
		},
	)

	PresenceFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_flushes_total",
			Help: "Presence batch flush attempts by outcome",
		},
		[]string{"result"}, // success, retry, dropped
	)

	PresenceFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "presence_flush_duration_seconds",
			Help:    "Duration of presence batch writes",
			Buckets: prometheus.DefBuckets,
		},
	)

	PresenceDroppedUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "presence_dropped_updates_total",
			Help: "Presence updates abandoned after exhausting retries",
		},
	)

	// Rate Limit Metrics
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter admission decisions",
		},
		[]string{"limiter", "algorithm", "result"}, // result: allowed, rejected
	)

	RateLimitTrackedKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rate_limit_tracked_keys",
			Help: "Identifiers currently tracked by each rate limiter",
		},
		[]string{"limiter"},
	)

	// HTTP Metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "HTTP requests currently being served",
		},
	)

	// Cache Metrics
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type", "reason"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)
)

// RecordRateLimit counts one admission decision.
func RecordRateLimit(limiter, algorithm string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	RateLimitDecisions.WithLabelValues(limiter, algorithm, result).Inc()
}

// RecordDelivery counts one fan-out attempt. latency is ignored unless the
// delivery was acknowledged.
func RecordDelivery(conversationType, result string, latency time.Duration) {
	RouterDeliveries.WithLabelValues(conversationType, result).Inc()
	if result == "delivered" {
		RouterAckLatency.Observe(latency.Seconds())
	}
}

// RecordPublish counts one bus publish.
func RecordPublish(envelopeType string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BusPublished.WithLabelValues(envelopeType, result).Inc()
}

// RecordFlush records the outcome of one presence batch write.
func RecordFlush(result string, batchSize int, duration time.Duration) {
	PresenceFlushes.WithLabelValues(result).Inc()
	PresenceFlushDuration.Observe(duration.Seconds())
	if result == "dropped" {
		PresenceDroppedUpdates.Add(float64(batchSize))
	}
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
