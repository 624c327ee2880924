package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_assistant_active_sessions",
		Help: "Number of active monitored sessions (0 or 1)",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_sessions_total",
		Help: "Total number of sessions by outcome",
	}, []string{"outcome"}) // completed, failed, aborted, rejected

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_assistant_session_duration_seconds",
		Help:    "Duration of monitored sessions in seconds",
		Buckets: []float64{30, 60, 300, 600, 1200, 1800, 3600, 7200},
	})

	// Event bus metrics
	busPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_bus_published_total",
		Help: "Messages published on the event bus",
	}, []string{"type"})

	busDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_bus_dropped_total",
		Help: "Messages dropped because a subscriber queue was full or the type was unknown",
	}, []string{"type", "reason"})

	// Agent metrics
	transcripts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_transcripts_total",
		Help: "Transcript events relayed by kind",
	}, []string{"kind"}) // interim, final

	termLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_term_lookups_total",
		Help: "Term lookups by result",
	}, []string{"result"}) // hit, miss, error, suppressed

	termLookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_assistant_term_lookup_latency_seconds",
		Help:    "Latency of term enrichment calls in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	metricsUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_metrics_updates_total",
		Help: "Metrics snapshots by throttle outcome",
	}, []string{"outcome"}) // emitted, coalesced

	agentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_agent_errors_total",
		Help: "Agent errors by source and recoverability",
	}, []string{"source", "recoverable"})

	fanoutDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_fanout_dropped_total",
		Help: "Transcript events not delivered to an agent because its queue was full",
	}, []string{"agent"})

	reconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_reconnect_attempts_total",
		Help: "Transcription stream reconnect attempts by result",
	}, []string{"result"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_assistant_audio_bytes_total",
		Help: "Audio bytes handled by the transcription producer",
	}, []string{"path"}) // forwarded, buffered, dropped
)

// SessionMetrics tracks metrics for a single session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordStart records that the session became active
func (m *SessionMetrics) RecordStart() {
	activeSessions.Inc()
}

// RecordEnd records the end of the session with its outcome. Repeated calls are ignored.
func (m *SessionMetrics) RecordEnd(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true

	activeSessions.Dec()
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordRejectedStart counts a start intent that never produced an active session
func RecordRejectedStart() {
	sessionsTotal.WithLabelValues("rejected").Inc()
}

// RecordTranscript counts a relayed transcript event
func RecordTranscript(final bool) {
	kind := "interim"
	if final {
		kind = "final"
	}
	transcripts.WithLabelValues(kind).Inc()
}

// RecordBusPublished counts a message accepted by the bus
func RecordBusPublished(msgType string) {
	busPublished.WithLabelValues(msgType).Inc()
}

// RecordBusDropped counts a message the bus could not deliver
func RecordBusDropped(msgType, reason string) {
	busDropped.WithLabelValues(msgType, reason).Inc()
}

// RecordTermLookup counts a term lookup outcome
func RecordTermLookup(result string) {
	termLookups.WithLabelValues(result).Inc()
}

// ObserveTermLookupLatency records the latency of one enrichment call
func ObserveTermLookupLatency(d time.Duration) {
	termLookupLatency.Observe(d.Seconds())
}

// RecordMetricsUpdate counts a metrics snapshot by throttle outcome
func RecordMetricsUpdate(outcome string) {
	metricsUpdates.WithLabelValues(outcome).Inc()
}

// RecordAgentError counts an agent error
func RecordAgentError(source string, recoverable bool) {
	agentErrors.WithLabelValues(source, strconv.FormatBool(recoverable)).Inc()
}

// RecordFanoutDropped counts a transcript an agent never received
func RecordFanoutDropped(agent string) {
	fanoutDropped.WithLabelValues(agent).Inc()
}

// RecordReconnectAttempt counts a reconnect attempt
func RecordReconnectAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	reconnectAttempts.WithLabelValues(result).Inc()
}

// RecordAudioBytes records audio bytes by path
func RecordAudioBytes(path string, bytes int) {
	audioBytes.WithLabelValues(path).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
