package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns a default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "trace",
	}
}

// Metrics holds all Prometheus collectors for the service. It is injected
// into the components that report on it; there is no package-level state.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	eventsTranslated   *prometheus.CounterVec
	translationFailed  *prometheus.CounterVec
	hierarchyMutations *prometheus.CounterVec
	lockContention     prometheus.Counter

	capturesTotal      *prometheus.CounterVec
	captureDuration    *prometheus.HistogramVec
	captureRetries     prometheus.Counter
	capturesPending    prometheus.Gauge
	capturesFailed     prometheus.Counter
	kafkaPublishTotal  *prometheus.CounterVec
	mongoOperations    *prometheus.CounterVec
	circuitBreakerOpen *prometheus.GaugeVec
}

// New creates and registers all collectors
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	ns := config.Namespace

	m := &Metrics{
		registry: registry,

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "http_requests_total",
			Help:        "Total HTTP requests",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		}, []string{"method", "path", "status"}),

		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),

		httpRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "http_requests_in_flight",
			Help:        "In-flight HTTP requests",
			ConstLabels: prometheus.Labels{"service": config.ServiceName},
		}),

		eventsTranslated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_translated_total",
			Help:      "Business events translated to EPCIS events",
		}, []string{"event_type", "epcis_type"}),

		translationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "translation_failures_total",
			Help:      "Business events rejected by the translator",
		}, []string{"event_type", "reason"}),

		hierarchyMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hierarchy_mutations_total",
			Help:      "Packaging hierarchy mutations by operation and outcome",
		}, []string{"operation", "outcome"}),

		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hierarchy_lock_contention_total",
			Help:      "Container lock acquisitions that required a retry",
		}),

		capturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "epcis_captures_total",
			Help:      "EPCIS capture attempts by outcome",
		}, []string{"outcome"}),

		captureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "epcis_capture_duration_seconds",
			Help:      "EPCIS capture latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),

		captureRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "epcis_capture_retries_total",
			Help:      "Retried EPCIS captures",
		}),

		capturesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "epcis_captures_pending",
			Help:      "Captures waiting in the retry queue",
		}),

		capturesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "epcis_captures_failed_total",
			Help:      "Captures that exhausted their retry budget",
		}),

		kafkaPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "kafka_publish_total",
			Help:      "Audit events published to Kafka by outcome",
		}, []string{"topic", "outcome"}),

		mongoOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "mongodb_operations_total",
			Help:      "MongoDB operations by collection and outcome",
		}, []string{"collection", "operation", "outcome"}),

		circuitBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.eventsTranslated,
		m.translationFailed,
		m.hierarchyMutations,
		m.lockContention,
		m.capturesTotal,
		m.captureDuration,
		m.captureRetries,
		m.capturesPending,
		m.capturesFailed,
		m.kafkaPublishTotal,
		m.mongoOperations,
		m.circuitBreakerOpen,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Inc() }

// DecrementHTTPRequestsInFlight decrements the in-flight gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() { m.httpRequestsInFlight.Dec() }

// RecordEventTranslated records a successful translation
func (m *Metrics) RecordEventTranslated(eventType, epcisType string) {
	m.eventsTranslated.WithLabelValues(eventType, epcisType).Inc()
}

// RecordTranslationFailure records a rejected business event
func (m *Metrics) RecordTranslationFailure(eventType, reason string) {
	m.translationFailed.WithLabelValues(eventType, reason).Inc()
}

// RecordHierarchyMutation records a pack/unpack/repack operation
func (m *Metrics) RecordHierarchyMutation(operation string, success bool) {
	m.hierarchyMutations.WithLabelValues(operation, outcomeLabel(success)).Inc()
}

// RecordLockContention records a contended container lock
func (m *Metrics) RecordLockContention() { m.lockContention.Inc() }

// RecordCapture records an EPCIS capture attempt
func (m *Metrics) RecordCapture(success bool, duration time.Duration) {
	outcome := outcomeLabel(success)
	m.capturesTotal.WithLabelValues(outcome).Inc()
	m.captureDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCaptureRetry records a retried capture
func (m *Metrics) RecordCaptureRetry() { m.captureRetries.Inc() }

// SetCapturesPending sets the retry queue depth
func (m *Metrics) SetCapturesPending(n int) { m.capturesPending.Set(float64(n)) }

// RecordCaptureExhausted records a capture that ran out of retries
func (m *Metrics) RecordCaptureExhausted() { m.capturesFailed.Inc() }

// RecordKafkaPublish records an audit event publish
func (m *Metrics) RecordKafkaPublish(topic string, success bool) {
	m.kafkaPublishTotal.WithLabelValues(topic, outcomeLabel(success)).Inc()
}

// RecordMongoDBOperation records a persistence operation
func (m *Metrics) RecordMongoDBOperation(collection, operation string, success bool) {
	m.mongoOperations.WithLabelValues(collection, operation, outcomeLabel(success)).Inc()
}

// SetCircuitBreakerState records a breaker state change
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreakerOpen.WithLabelValues(name).Set(float64(state))
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func httpStatusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
