package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TTS metrics
	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siliconflow_tts_requests_total",
		Help: "Total number of TTS requests",
	}, []string{"transport", "status"})

	ttsLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siliconflow_tts_latency_seconds",
		Help:    "TTS request latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"transport"})

	audioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siliconflow_tts_audio_bytes_total",
		Help: "Total audio bytes returned to clients",
	})

	textChars = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siliconflow_tts_text_characters_total",
		Help: "Total characters of text submitted for synthesis",
	})

	// Stream metrics
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siliconflow_tts_active_streams",
		Help: "Number of open WebSocket synthesis sessions",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siliconflow_tts_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "siliconflow_tts_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siliconflow_tts_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Transport labels
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// RequestMetrics tracks one synthesis request.
type RequestMetrics struct {
	transport string
	startTime time.Time
}

// NewRequestMetrics starts timing a synthesis request on the given transport.
func NewRequestMetrics(transport string) *RequestMetrics {
	return &RequestMetrics{
		transport: transport,
		startTime: time.Now(),
	}
}

// RecordText records the size of the submitted text
func (m *RequestMetrics) RecordText(chars int) {
	textChars.Add(float64(chars))
}

// RecordEnd records the outcome of the request. status is "success" or an error type.
func (m *RequestMetrics) RecordEnd(status string, audioLen int) {
	ttsLatency.WithLabelValues(m.transport).Observe(time.Since(m.startTime).Seconds())
	ttsRequests.WithLabelValues(m.transport, status).Inc()
	if audioLen > 0 {
		audioBytes.Add(float64(audioLen))
	}
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// StreamOpened increments the open stream gauge
func StreamOpened() {
	activeStreams.Inc()
}

// StreamClosed decrements the open stream gauge
func StreamClosed() {
	activeStreams.Dec()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
