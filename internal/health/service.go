package health

import "time"

// Thresholds maps an error rate to a status. Rates at or below Degraded are
// healthy; rates above Unhealthy are unhealthy.
type Thresholds struct {
	Degraded  float64
	Unhealthy float64
}

// DefaultThresholds returns the standard policy
func DefaultThresholds() Thresholds {
	return Thresholds{
		Degraded:  DefaultDegradedThreshold,
		Unhealthy: DefaultUnhealthyThreshold,
	}
}

// Classify returns the status for an error rate
func (t Thresholds) Classify(errorRate float64) HealthStatus {
	switch {
	case errorRate > t.Unhealthy:
		return StatusUnhealthy
	case errorRate > t.Degraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Evaluate builds a report from lifetime counters. A bridge that has served
// nothing yet is healthy.
func (t Thresholds) Evaluate(totalRequests, totalErrors int64, now time.Time) Report {
	rate := 0.0
	if totalRequests > 0 {
		rate = float64(totalErrors) / float64(totalRequests)
	}
	return Report{
		Status:        t.Classify(rate),
		ErrorRate:     rate,
		TotalRequests: totalRequests,
		TotalErrors:   totalErrors,
		Timestamp:     now.UTC(),
	}
}
