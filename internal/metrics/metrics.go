// Package metrics provides Prometheus collectors for the CodeLab backend:
// HTTP, sandbox execution, websocket fabric, submissions and monitoring.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Sandbox execution
	SandboxRunsTotal   *prometheus.CounterVec
	SandboxRunDuration *prometheus.HistogramVec
	SandboxesInFlight  prometheus.Gauge

	// Websocket fabric
	SocketConnectionsGauge *prometheus.GaugeVec
	SocketEventsTotal      *prometheus.CounterVec

	// Classroom
	ActiveLabSessionsGauge prometheus.Gauge
	OnlineStudentsGauge    prometheus.Gauge
	OnlineInstructorsGauge prometheus.Gauge

	// Submissions
	SubmissionsTotal *prometheus.CounterVec
	SubmissionScore  prometheus.Histogram

	// Monitoring pipeline
	MonitoringEventsTotal  *prometheus.CounterVec
	MonitoringFlagsTotal   *prometheus.CounterVec
	OpenMonitoringSessions prometheus.Gauge

	// System
	StartupTime prometheus.Gauge
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status class",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codelab",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.SandboxRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Total number of sandbox runs by language and outcome",
		},
		[]string{"language", "outcome"},
	)

	m.SandboxRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codelab",
			Subsystem: "sandbox",
			Name:      "run_duration_seconds",
			Help:      "Sandbox run duration in seconds, compile included",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language"},
	)

	m.SandboxesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "sandbox",
			Name:      "in_flight",
			Help:      "Number of sandbox children currently running",
		},
	)

	m.SocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Current number of websocket connections by role",
		},
		[]string{"role"},
	)

	m.SocketEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "websocket",
			Name:      "events_total",
			Help:      "Total number of websocket events by name and direction",
		},
		[]string{"event", "direction"},
	)

	m.ActiveLabSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "classroom",
			Name:      "active_lab_sessions",
			Help:      "Number of lab sessions currently active",
		},
	)

	m.OnlineStudentsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "classroom",
			Name:      "online_students",
			Help:      "Number of students currently connected",
		},
	)

	m.OnlineInstructorsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "classroom",
			Name:      "online_instructors",
			Help:      "Number of instructors currently connected",
		},
	)

	m.SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "submissions",
			Name:      "total",
			Help:      "Total number of graded submissions by language and status",
		},
		[]string{"language", "status"},
	)

	m.SubmissionScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codelab",
			Subsystem: "submissions",
			Name:      "score",
			Help:      "Submission score distribution (0-100)",
			Buckets:   []float64{0, 10, 25, 50, 75, 90, 100},
		},
	)

	m.MonitoringEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "monitoring",
			Name:      "events_total",
			Help:      "Total number of ingested monitoring events by type",
		},
		[]string{"type"},
	)

	m.MonitoringFlagsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codelab",
			Subsystem: "monitoring",
			Name:      "flags_total",
			Help:      "Total number of raised integrity flags by kind",
		},
		[]string{"kind"},
	)

	m.OpenMonitoringSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "monitoring",
			Name:      "open_sessions",
			Help:      "Number of monitoring windows currently open",
		},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codelab",
			Subsystem: "server",
			Name:      "startup_timestamp",
			Help:      "Server startup timestamp",
		},
	)
	m.StartupTime.Set(float64(time.Now().Unix()))

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, statusClass(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordSandboxRun records one finished sandbox run.
func (m *Metrics) RecordSandboxRun(language, outcome string, duration time.Duration) {
	m.SandboxRunsTotal.WithLabelValues(language, outcome).Inc()
	m.SandboxRunDuration.WithLabelValues(language).Observe(duration.Seconds())
}

// RecordSocketEvent records one websocket event.
func (m *Metrics) RecordSocketEvent(event, direction string) {
	m.SocketEventsTotal.WithLabelValues(event, direction).Inc()
}

// RecordSubmission records one graded submission.
func (m *Metrics) RecordSubmission(language, status string, score float64) {
	m.SubmissionsTotal.WithLabelValues(language, status).Inc()
	m.SubmissionScore.Observe(score)
}

// RecordMonitoringEvent records one ingested monitoring event.
func (m *Metrics) RecordMonitoringEvent(eventType string) {
	m.MonitoringEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordMonitoringFlag records one raised integrity flag.
func (m *Metrics) RecordMonitoringFlag(kind string) {
	m.MonitoringFlagsTotal.WithLabelValues(kind).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
