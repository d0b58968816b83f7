package service

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation and provides a
// lightweight snapshot for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	outcomeTotal    *prometheus.CounterVec
	capacityRaces   prometheus.Counter
	queueDepth      prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	capacityRaceCount    uint64
	lastQueueDepth       int64
}

// MetricsSnapshot is a JSON-friendly view of the core counters.
type MetricsSnapshot struct {
	RequestCount     uint64  `json:"request_count"`
	AvgLatencyMillis float64 `json:"avg_latency_ms"`
	CapacityRaces    uint64  `json:"capacity_races"`
	QueueDepth       int64   `json:"queue_depth"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	outcomeTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_outcomes_total",
		Help: "Terminal enrollment decisions by operation, status and reason",
	}, []string{"operation", "status", "reason"})

	capacityRaces := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_capacity_races_total",
		Help: "Seat reservations lost to the ledger's capacity re-check",
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "enrollment_queue_depth",
		Help: "Queued requests awaiting processing",
	})

	registry.MustRegister(requestDuration, requestTotal, outcomeTotal, capacityRaces, queueDepth)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		outcomeTotal:    outcomeTotal,
		capacityRaces:   capacityRaces,
		queueDepth:      queueDepth,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Milliseconds()))
}

// ObserveOutcome records one terminal enrollment decision.
func (m *MetricsService) ObserveOutcome(operation, status, reason string) {
	if reason == "" {
		reason = "none"
	}
	m.outcomeTotal.WithLabelValues(operation, status, reason).Inc()
}

// ObserveCapacityRace counts a reservation lost to the ledger re-check.
func (m *MetricsService) ObserveCapacityRace() {
	m.capacityRaces.Inc()
	atomic.AddUint64(&m.capacityRaceCount, 1)
}

// SetQueueDepth publishes the broker's pending list length.
func (m *MetricsService) SetQueueDepth(depth int64) {
	m.queueDepth.Set(float64(depth))
	atomic.StoreInt64(&m.lastQueueDepth, depth)
}

// Snapshot returns the JSON-friendly counter view.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	count := atomic.LoadUint64(&m.requestCount)
	totalMillis := atomic.LoadUint64(&m.requestDurationTotal)
	avg := 0.0
	if count > 0 {
		avg = float64(totalMillis) / float64(count)
	}
	return MetricsSnapshot{
		RequestCount:     count,
		AvgLatencyMillis: avg,
		CapacityRaces:    atomic.LoadUint64(&m.capacityRaceCount),
		QueueDepth:       atomic.LoadInt64(&m.lastQueueDepth),
	}
}
