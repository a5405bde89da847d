package services

import (
	"log"
	"time"

	"agenticdebugger/internal/models"
)

// StateBroadcaster fans snapshot changes out to WebSocket subscribers
type StateBroadcaster struct {
	connections *ConnectionManager
	metrics     *Metrics
}

// NewStateBroadcaster creates a broadcaster over connections. metrics may be nil.
func NewStateBroadcaster(connections *ConnectionManager, metrics *Metrics) *StateBroadcaster {
	return &StateBroadcaster{connections: connections, metrics: metrics}
}

// Broadcast queues msg on every live connection and drops connections that
// are closed or cannot keep up. It never blocks on the network; each
// connection's write loop does the sending. Returns the number delivered.
func (b *StateBroadcaster) Broadcast(msg models.StreamMessage) int {
	delivered := 0
	for _, conn := range b.connections.GetAll() {
		if conn.IsClosed() || !conn.SafeSend(msg) {
			log.Printf("⚠️  [WS] Dropping subscriber %s (closed or backlogged)", conn.ConnID)
			b.connections.Remove(conn.ConnID)
			continue
		}
		delivered++
		if b.metrics != nil {
			b.metrics.RecordWebSocketMessage(msg.Type, "outbound")
		}
	}
	return delivered
}

// BroadcastSnapshot pushes a stateChange message
func (b *StateBroadcaster) BroadcastSnapshot(snap models.Snapshot) int {
	return b.Broadcast(models.StreamMessage{
		Type:      models.StreamStateChange,
		Snapshot:  &snap,
		Timestamp: time.Now().UTC(),
	})
}
