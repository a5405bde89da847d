package services

import (
	"context"
	"log"
	"sync/atomic"

	"agenticdebugger/internal/engine"
)

// EventPump consumes engine events in emission order, folds each into the
// snapshot cache and broadcasts the result. It never calls back into the engine.
type EventPump struct {
	events      <-chan engine.Event
	cache       *SnapshotCache
	broadcaster *StateBroadcaster

	processed atomic.Int64
	done      chan struct{}
}

// NewEventPump creates a pump over events. broadcaster may be nil.
func NewEventPump(events <-chan engine.Event, cache *SnapshotCache, broadcaster *StateBroadcaster) *EventPump {
	return &EventPump{
		events:      events,
		cache:       cache,
		broadcaster: broadcaster,
		done:        make(chan struct{}),
	}
}

// Start runs the pump until ctx is cancelled or the event channel closes
func (p *EventPump) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *EventPump) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-p.events:
			if !ok {
				log.Printf("⚠️  [EVENTS] Engine event stream closed")
				return
			}
			p.handle(ev)
		}
	}
}

func (p *EventPump) handle(ev engine.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [EVENTS] Panic handling %s event: %v", ev.Kind, r)
		}
	}()

	merged := p.cache.ApplyEvent(ev.Snapshot)
	p.processed.Add(1)
	if p.broadcaster != nil {
		p.broadcaster.BroadcastSnapshot(merged)
	}
}

// Processed returns the number of events applied
func (p *EventPump) Processed() int64 {
	return p.processed.Load()
}

// Done is closed when the pump exits
func (p *EventPump) Done() <-chan struct{} {
	return p.done
}
