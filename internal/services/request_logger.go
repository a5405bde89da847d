package services

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"agenticdebugger/internal/models"

	"github.com/google/uuid"
)

// PendingRequest is a log entry that has started but not completed. It is
// owned by the request goroutine until Complete.
type PendingRequest struct {
	ID          string
	Method      string
	Path        string
	RequestBody string
	Started     time.Time
}

// RequestLogger keeps the most recent completed requests in a fixed-size ring.
// Entries enter the ring only on completion and are never modified after.
type RequestLogger struct {
	mu        sync.RWMutex
	buf       []models.LogEntry
	next      int
	count     int
	bodyLimit int
}

// NewRequestLogger creates a logger holding up to capacity entries. Bodies
// longer than bodyLimit bytes are truncated; a bodyLimit <= 0 disables capture.
func NewRequestLogger(capacity, bodyLimit int) *RequestLogger {
	if capacity <= 0 {
		capacity = 500
	}
	return &RequestLogger{
		buf:       make([]models.LogEntry, capacity),
		bodyLimit: bodyLimit,
	}
}

func (l *RequestLogger) capBody(body []byte) string {
	if l.bodyLimit <= 0 || len(body) == 0 {
		return ""
	}
	if len(body) <= l.bodyLimit {
		return string(body)
	}
	cut := l.bodyLimit
	// back off to a rune boundary
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(truncated %d bytes)", body[:cut], len(body)-cut)
}

// Begin starts an entry for a request
func (l *RequestLogger) Begin(method, path string, body []byte) *PendingRequest {
	return &PendingRequest{
		ID:          uuid.New().String(),
		Method:      method,
		Path:        path,
		RequestBody: l.capBody(body),
		Started:     time.Now(),
	}
}

// Complete stores the finished entry, evicting the oldest when full
func (l *RequestLogger) Complete(p *PendingRequest, status int, responseBody []byte) models.LogEntry {
	entry := models.LogEntry{
		ID:           p.ID,
		Timestamp:    p.Started.UTC(),
		Method:       p.Method,
		Path:         p.Path,
		RequestBody:  p.RequestBody,
		ResponseBody: l.capBody(responseBody),
		StatusCode:   status,
		DurationMs:   float64(time.Since(p.Started).Microseconds()) / 1000,
	}

	l.mu.Lock()
	l.buf[l.next] = entry
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	l.mu.Unlock()

	return entry
}

// at returns the i-th most recent entry. Caller holds the lock.
func (l *RequestLogger) at(i int) models.LogEntry {
	idx := (l.next - 1 - i + len(l.buf)) % len(l.buf)
	return l.buf[idx]
}

// List returns matching entries, most recent first
func (l *RequestLogger) List(filter models.LogFilter) []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.LogEntry, 0, min(l.count, 64))
	for i := 0; i < l.count; i++ {
		e := l.at(i)
		if !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Get returns the entry with id
func (l *RequestLogger) Get(id string) (models.LogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := 0; i < l.count; i++ {
		if e := l.at(i); e.ID == id {
			return e, true
		}
	}
	return models.LogEntry{}, false
}

// Len returns the number of stored entries
func (l *RequestLogger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the ring size
func (l *RequestLogger) Capacity() int {
	return len(l.buf)
}

// Clear empties the buffer and returns how many entries were dropped
func (l *RequestLogger) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.count
	for i := range l.buf {
		l.buf[i] = models.LogEntry{}
	}
	l.next = 0
	l.count = 0
	return n
}
