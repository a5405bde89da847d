package services

import (
	"log"
	"sync"
	"time"

	"agenticdebugger/internal/models"
)

// ConnectionManager manages all active WebSocket subscribers
type ConnectionManager struct {
	connections map[string]*models.StreamConnection
	mutex       sync.RWMutex
	handlers    sync.WaitGroup
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*models.StreamConnection),
	}
}

// Add adds a new connection. The handler owning it must call Release when it exits.
func (cm *ConnectionManager) Add(conn *models.StreamConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	cm.handlers.Add(1)
	log.Printf("✅ [WS] Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove closes a connection's outbound queue and forgets it. Safe to call repeatedly.
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		conn.MarkClosed()
		delete(cm.connections, connID)
		log.Printf("❌ [WS] Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Release is called once by the connection's handler on exit
func (cm *ConnectionManager) Release(connID string) {
	cm.Remove(connID)
	cm.handlers.Done()
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// GetAll returns all active connections
func (cm *ConnectionManager) GetAll() []*models.StreamConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	conns := make([]*models.StreamConnection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		conns = append(conns, conn)
	}
	return conns
}

// CloseAll closes every connection and waits up to timeout for their
// handlers to exit. Returns false on timeout.
func (cm *ConnectionManager) CloseAll(timeout time.Duration) bool {
	for _, conn := range cm.GetAll() {
		cm.Remove(conn.ConnID)
	}

	done := make(chan struct{})
	go func() {
		cm.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.Printf("⚠️  [WS] %d connection handlers still running after %s", cm.Count(), timeout)
		return false
	}
}
