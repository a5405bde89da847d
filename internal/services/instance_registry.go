package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"agenticdebugger/internal/models"
)

var (
	// ErrInstanceNotFound is returned for an unknown or expired instance id
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrProxyToSelf is returned when a request is routed to the local instance
	ErrProxyToSelf = errors.New("cannot proxy a request to the local instance")
	// ErrInvalidInstance is returned for a registration missing id or port
	ErrInvalidInstance = errors.New("invalid instance registration")
)

// InstanceRegistry is the primary's table of live bridges. Secondaries keep
// one too, holding only themselves.
type InstanceRegistry struct {
	mu      sync.RWMutex
	self    models.InstanceInfo
	entries map[string]models.InstanceInfo
	ttl     time.Duration
	now     func() time.Time
}

// NewInstanceRegistry creates a registry owned by self
func NewInstanceRegistry(self models.InstanceInfo, ttl time.Duration) *InstanceRegistry {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &InstanceRegistry{
		self:    self,
		entries: make(map[string]models.InstanceInfo),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (r *InstanceRegistry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Self returns the local instance record, stamped now
func (r *InstanceRegistry) Self() models.InstanceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	self := r.self
	self.LastSeen = r.now().UTC()
	return self
}

// IsPrimary reports whether the local instance coordinates
func (r *InstanceRegistry) IsPrimary() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.self.IsPrimary
}

// TTL returns the eviction window
func (r *InstanceRegistry) TTL() time.Duration {
	return r.ttl
}

func (r *InstanceRegistry) stale(info models.InstanceInfo, now time.Time) bool {
	return now.Sub(info.LastSeen) > r.ttl
}

// Register records a heartbeat. An existing entry with the same id or the
// same port is replaced. Returns true when the instance was not known before.
func (r *InstanceRegistry) Register(info models.InstanceInfo) (models.InstanceInfo, bool, error) {
	info.ID = strings.TrimSpace(info.ID)
	if info.ID == "" || info.Port <= 0 {
		return models.InstanceInfo{}, false, fmt.Errorf("%w: id and port are required", ErrInvalidInstance)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if info.ID == r.self.ID || info.Port == r.self.Port {
		return models.InstanceInfo{}, false, fmt.Errorf("%w: registration collides with the local instance", ErrInvalidInstance)
	}

	now := r.now()
	// known means some replaced entry was still live
	known := false
	for id, existing := range r.entries {
		if id == info.ID || existing.Port == info.Port {
			delete(r.entries, id)
			if !r.stale(existing, now) {
				known = true
			}
		}
	}
	created := !known

	info.LastSeen = now.UTC()
	info.IsPrimary = false
	r.entries[info.ID] = info

	if created {
		log.Printf("➕ [REGISTRY] Instance registered: %s (port %d, pid %d, %s)", info.ID, info.Port, info.PID, info.SolutionName)
	}
	return info, created, nil
}

// Lookup resolves an instance id for proxying
func (r *InstanceRegistry) Lookup(id string) (models.InstanceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == r.self.ID {
		return models.InstanceInfo{}, ErrProxyToSelf
	}
	info, ok := r.entries[id]
	if !ok || r.stale(info, r.now()) {
		return models.InstanceInfo{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return info, nil
}

// List returns the local instance first, then live entries by port
func (r *InstanceRegistry) List() []models.InstanceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	self := r.self
	self.LastSeen = now.UTC()

	others := make([]models.InstanceInfo, 0, len(r.entries))
	for _, info := range r.entries {
		if !r.stale(info, now) {
			others = append(others, info)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Port < others[j].Port })

	return append([]models.InstanceInfo{self}, others...)
}

// Count returns the number of live instances including self
func (r *InstanceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	n := 1
	for _, info := range r.entries {
		if !r.stale(info, now) {
			n++
		}
	}
	return n
}

// Sweep evicts stale entries and returns how many were removed
func (r *InstanceRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, info := range r.entries {
		if r.stale(info, now) {
			delete(r.entries, id)
			removed++
			log.Printf("➖ [REGISTRY] Evicted stale instance %s (port %d, last seen %s ago)", id, info.Port, now.Sub(info.LastSeen).Round(time.Millisecond))
		}
	}
	return removed
}
