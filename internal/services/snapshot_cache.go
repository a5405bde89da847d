package services

import (
	"sync"

	"agenticdebugger/internal/models"
)

// SnapshotCache holds the last known engine state. Readers never touch the
// engine; writers are the event pump, the periodic refresh and the executor.
//
// Notes and exception are sticky: a newer capture without them inherits the
// cached values as long as the engine is still in the same mode (and, for the
// exception, still Broken). Any mode transition drops them.
type SnapshotCache struct {
	mu      sync.RWMutex
	current models.Snapshot
	version uint64
}

// NewSnapshotCache starts in the Unknown state
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{current: models.NewUnknownSnapshot()}
}

// Get returns a copy of the cached snapshot
func (c *SnapshotCache) Get() models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Version increments on every engine event. A refresh started at one version
// is discarded if an event landed while it ran.
func (c *SnapshotCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func overlay(prev, next models.Snapshot) models.Snapshot {
	out := next.Clone()
	if prev.Mode != next.Mode {
		return out
	}
	if out.Notes == "" {
		out.Notes = prev.Notes
	}
	if out.Exception == "" && out.Mode == models.ModeBroken {
		out.Exception = prev.Exception
	}
	if out.SolutionName == "" {
		out.SolutionName = prev.SolutionName
		out.SolutionPath = prev.SolutionPath
	}
	return out
}

// ApplyEvent replaces the cached snapshot with an engine event's capture and
// returns the merged result
func (c *SnapshotCache) ApplyEvent(snap models.Snapshot) models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = overlay(c.current, snap)
	c.version++
	return c.current.Clone()
}

// Refresh stores a live capture taken when the cache was at version. It returns
// the merged snapshot and whether it was stored.
func (c *SnapshotCache) Refresh(version uint64, snap models.Snapshot) (models.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := overlay(c.current, snap)
	if version != c.version {
		return merged, false
	}
	c.current = merged
	return merged.Clone(), true
}

// SetNote attaches a sticky note to the cached snapshot. The last writer wins.
func (c *SnapshotCache) SetNote(note string) models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Notes = note
	return c.current.Clone()
}
