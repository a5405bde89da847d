// Package health derives the bridge's health status from its lifetime error rate.
package health

import "time"

// HealthStatus represents the health state of the bridge
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Default thresholds on the fraction of requests that failed
const (
	DefaultDegradedThreshold  = 0.10
	DefaultUnhealthyThreshold = 0.25
)

// Report is the body of GET /health
type Report struct {
	Status        HealthStatus `json:"status"`
	ErrorRate     float64      `json:"errorRate"`
	TotalRequests int64        `json:"totalRequests"`
	TotalErrors   int64        `json:"totalErrors"`
	Timestamp     time.Time    `json:"timestamp"`
}

// OK reports whether the status should be served with 200
func (r Report) OK() bool {
	return r.Status == StatusHealthy
}
