package services

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"agenticdebugger/internal/health"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsSnapshot is the body of GET /metrics
type MetricsSnapshot struct {
	StartTime                  time.Time        `json:"startTime"`
	Uptime                     string           `json:"uptime"`
	UptimeSeconds              float64          `json:"uptimeSeconds"`
	TotalRequests              int64            `json:"totalRequests"`
	TotalErrors                int64            `json:"totalErrors"`
	ErrorRate                  float64          `json:"errorRate"`
	AverageResponseTimeMs      float64          `json:"averageResponseTimeMs"`
	RequestsByEndpoint         map[string]int64 `json:"requestsByEndpoint"`
	CommandsByName             map[string]int64 `json:"commandsByName"`
	CommandFailuresByName      map[string]int64 `json:"commandFailuresByName"`
	ActiveWebSocketConnections int              `json:"activeWebSocketConnections"`
	InstanceCount              int              `json:"instanceCount"`
}

// Metrics holds the bridge counters. Lifetime totals are atomics; keyed
// counters sit behind a short-held mutex. Every value is mirrored into a
// per-bridge Prometheus registry.
type Metrics struct {
	startTime  time.Time
	thresholds health.Thresholds

	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	latencyNanos  atomic.Int64

	mu              sync.Mutex
	byEndpoint      map[string]int64
	byCommand       map[string]int64
	commandFailures map[string]int64

	wsCount       func() int
	instanceCount func() int

	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPLatency       *prometheus.HistogramVec
	Commands          *prometheus.CounterVec
	CommandLatency    prometheus.Histogram
	WebSocketMessages *prometheus.CounterVec
}

// NewMetrics registers the bridge collectors on reg. wsCount and
// instanceCount feed gauges and may be nil.
func NewMetrics(reg *prometheus.Registry, wsCount, instanceCount func() int) *Metrics {
	if wsCount == nil {
		wsCount = func() int { return 0 }
	}
	if instanceCount == nil {
		instanceCount = func() int { return 1 }
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime:       time.Now().UTC(),
		thresholds:      health.DefaultThresholds(),
		byEndpoint:      make(map[string]int64),
		byCommand:       make(map[string]int64),
		commandFailures: make(map[string]int64),
		wsCount:         wsCount,
		instanceCount:   instanceCount,
		registry:        reg,

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentic_bridge_requests_total",
			Help: "Total number of requests handled by endpoint and status",
		}, []string{"method", "endpoint", "status"}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentic_bridge_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"endpoint"}),

		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentic_bridge_commands_total",
			Help: "Total number of engine commands by name and outcome",
		}, []string{"command", "outcome"}),

		CommandLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentic_bridge_command_duration_seconds",
			Help:    "Engine command latency in seconds, including the wait for the automation thread",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),

		WebSocketMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentic_bridge_websocket_messages_total",
			Help: "Total number of WebSocket messages by type",
		}, []string{"type", "direction"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agentic_bridge_websocket_connections_current",
		Help: "Current number of WebSocket subscribers",
	}, func() float64 { return float64(m.wsCount()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "agentic_bridge_instances_current",
		Help: "Number of live bridge instances known to this bridge, including itself",
	}, func() float64 { return float64(m.instanceCount()) })

	return m
}

// Registry returns the Prometheus registry the metrics live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest counts one completed request. Statuses >= 400 are errors.
func (m *Metrics) RecordRequest(method, endpoint string, status int, d time.Duration) {
	m.totalRequests.Add(1)
	if status >= 400 {
		m.totalErrors.Add(1)
	}
	m.latencyNanos.Add(int64(d))

	m.mu.Lock()
	m.byEndpoint[endpoint]++
	m.mu.Unlock()

	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordCommand counts one engine command
func (m *Metrics) RecordCommand(name string, ok bool, d time.Duration) {
	outcome := "success"
	m.mu.Lock()
	m.byCommand[name]++
	if !ok {
		m.commandFailures[name]++
		outcome = "failure"
	}
	m.mu.Unlock()

	m.Commands.WithLabelValues(name, outcome).Inc()
	m.CommandLatency.Observe(d.Seconds())
}

// RecordWebSocketMessage records a WebSocket message
func (m *Metrics) RecordWebSocketMessage(msgType, direction string) {
	m.WebSocketMessages.WithLabelValues(msgType, direction).Inc()
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Snapshot returns a consistent-enough view of every counter
func (m *Metrics) Snapshot() MetricsSnapshot {
	total := m.totalRequests.Load()
	errs := m.totalErrors.Load()
	uptime := time.Since(m.startTime)

	snap := MetricsSnapshot{
		StartTime:                  m.startTime,
		Uptime:                     uptime.Round(time.Second).String(),
		UptimeSeconds:              uptime.Seconds(),
		TotalRequests:              total,
		TotalErrors:                errs,
		ActiveWebSocketConnections: m.wsCount(),
		InstanceCount:              m.instanceCount(),
	}
	if total > 0 {
		snap.ErrorRate = float64(errs) / float64(total)
		snap.AverageResponseTimeMs = float64(m.latencyNanos.Load()) / float64(total) / float64(time.Millisecond)
	}

	m.mu.Lock()
	snap.RequestsByEndpoint = copyCounts(m.byEndpoint)
	snap.CommandsByName = copyCounts(m.byCommand)
	snap.CommandFailuresByName = copyCounts(m.commandFailures)
	m.mu.Unlock()

	return snap
}

// Health derives the bridge status from the lifetime error rate
func (m *Metrics) Health() health.Report {
	return m.thresholds.Evaluate(m.totalRequests.Load(), m.totalErrors.Load(), time.Now())
}
