package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Naming convention: namespace_subsystem_name
// - namespace: abyssal (application-level grouping)
// - subsystem: websocket, room, eat (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "abyssal",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "abyssal",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants uses a Gauge rather than a Histogram because we
	// want current participant count per room, not a distribution of
	// historical counts.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "abyssal",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_id"})

	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "abyssal",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing WebSocket messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// EatClaims tracks eat-arbiter resolutions (CounterVec - cumulative).
	EatClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "eat",
		Name:      "claims_total",
		Help:      "Total EAT_NPC claims resolved, by outcome",
	}, []string{"outcome"}) // outcome: accepted, rejected_duplicate, rejected_unknown_npc

	HostElections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "room",
		Name:      "host_elections_total",
		Help:      "Total host re-elections triggered by host disconnect",
	}, []string{"room_id"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "abyssal",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "abyssal",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "abyssal",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
