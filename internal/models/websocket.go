package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Stream message types pushed to WebSocket subscribers
const (
	StreamConnected   = "connected"
	StreamStateChange = "stateChange"
	StreamPong        = "pong"
)

// StreamMessage is a server-to-client push
type StreamMessage struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connectionId,omitempty"`
	Message      string    `json:"message,omitempty"`
	Snapshot     *Snapshot `json:"snapshot,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// StreamConnection represents a single push subscriber
type StreamConnection struct {
	ConnID    string
	ClientIP  string
	Conn      *websocket.Conn
	CreatedAt time.Time

	// WriteMu serialises frame writes on Conn
	WriteMu sync.Mutex

	writeChan chan StreamMessage
	mutex     sync.Mutex
	closed    bool
}

// NewStreamConnection wraps conn with an outbound queue of the given depth
func NewStreamConnection(connID string, conn *websocket.Conn, queue int) *StreamConnection {
	if queue <= 0 {
		queue = 64
	}
	return &StreamConnection{
		ConnID:    connID,
		Conn:      conn,
		CreatedAt: time.Now(),
		writeChan: make(chan StreamMessage, queue),
	}
}

// Outbound is drained by the connection's write loop
func (sc *StreamConnection) Outbound() <-chan StreamMessage {
	return sc.writeChan
}

// SafeSend queues msg without blocking. It returns false when the connection
// is closed or its queue is full.
func (sc *StreamConnection) SafeSend(msg StreamMessage) bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sc.closed {
		return false
	}
	select {
	case sc.writeChan <- msg:
		return true
	default:
		return false
	}
}

// MarkClosed closes the outbound queue. Safe to call more than once.
func (sc *StreamConnection) MarkClosed() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	close(sc.writeChan)
}

// IsClosed returns true if the connection has been marked as closed
func (sc *StreamConnection) IsClosed() bool {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.closed
}
