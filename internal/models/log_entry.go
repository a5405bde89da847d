package models

import "time"

// LogEntry is an audit record of one request. Entries are immutable once stored.
type LogEntry struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	RequestBody  string    `json:"requestBody,omitempty"`
	ResponseBody string    `json:"responseBody,omitempty"`
	StatusCode   int       `json:"statusCode"`
	DurationMs   float64   `json:"durationMs"`
}

// LogFilter narrows a log listing. Zero values match everything.
type LogFilter struct {
	PathContains string
	MinStatus    int
	MaxStatus    int
	Limit        int
}

// Matches reports whether e passes the filter
func (f LogFilter) Matches(e LogEntry) bool {
	if f.PathContains != "" && !containsFold(e.Path, f.PathContains) {
		return false
	}
	if f.MinStatus > 0 && e.StatusCode < f.MinStatus {
		return false
	}
	if f.MaxStatus > 0 && e.StatusCode > f.MaxStatus {
		return false
	}
	return true
}
